package auth

import (
	"encoding/gob"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
)

const (
	sessionName = "climaterisk_session"
	keyUserID   = "user_id"

	// RememberFor is how long a "remember me" login lasts.
	RememberFor = 30 * 24 * time.Hour
)

// Flash categories, rendered as toast variants.
const (
	FlashSuccess = "success"
	FlashDanger  = "danger"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"variant"`
	Message  string `json:"description"`
}

func init() {
	gob.Register(Flash{})
}

// Sessions manages the login cookie and flash messages.
type Sessions struct {
	store sessions.Store
}

// NewSessions creates a cookie-backed session manager signed with secret.
func NewSessions(secret []byte, secure bool) *Sessions {
	cs := sessions.NewCookieStore(secret)
	cs.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: cs}
}

// NewSessionsWithStore wraps an existing gorilla store.
func NewSessionsWithStore(store sessions.Store) *Sessions {
	return &Sessions{store: store}
}

// get returns the session, starting a fresh one when the cookie fails to decode.
func (s *Sessions) get(r *http.Request) *sessions.Session {
	sess, err := s.store.Get(r, sessionName)
	if err != nil || sess == nil {
		sess, _ = s.store.New(r, sessionName)
	}
	return sess
}

// Login records userID in the session. With remember set the cookie
// persists for RememberFor; otherwise it ends with the browser session.
func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, userID int64, remember bool) error {
	sess := s.get(r)
	sess.Values[keyUserID] = userID
	opts := *sess.Options
	opts.MaxAge = 0
	if remember {
		opts.MaxAge = int(RememberFor / time.Second)
	}
	sess.Options = &opts
	return sess.Save(r, w)
}

// Logout removes the user from the session. Pending flashes survive.
func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	delete(sess.Values, keyUserID)
	return sess.Save(r, w)
}

// UserID returns the logged-in user's ID.
func (s *Sessions) UserID(r *http.Request) (int64, bool) {
	sess := s.get(r)
	id, ok := sess.Values[keyUserID].(int64)
	return id, ok && id > 0
}

// AddFlash queues a message for the next page render.
func (s *Sessions) AddFlash(w http.ResponseWriter, r *http.Request, category, message string) error {
	sess := s.get(r)
	sess.AddFlash(Flash{Category: category, Message: message})
	return sess.Save(r, w)
}

// Flashes returns and clears the queued messages.
func (s *Sessions) Flashes(w http.ResponseWriter, r *http.Request) ([]Flash, error) {
	sess := s.get(r)
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			out = append(out, f)
		}
	}
	return out, sess.Save(r, w)
}

// SafeNext returns next if it is a local absolute path, otherwise "/".
// Scheme-relative ("//host") and backslash forms are rejected.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return "/"
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") || strings.ContainsAny(next, "\r\n") {
		return "/"
	}
	return next
}
