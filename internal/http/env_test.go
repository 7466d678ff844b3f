package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/cache"
	"github.com/kjstillabower/climate-risk-service/internal/lifecycle"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/service"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/traffic"
	"github.com/kjstillabower/climate-risk-service/internal/web"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct-horse"
)

var dbSeq atomic.Int64

// testEnv is a full router over a fresh in-memory database.
type testEnv struct {
	t       *testing.T
	server  *httptest.Server
	handler *Handler
	store   *store.SQLStore
	logs    *observer.ObservedLogs
	user    models.User
	admin   models.User
}

type envOption func(*Deps, *RouterOptions)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	st, err := store.Open(ctx, store.Config{Driver: store.DriverMemory, DSN: fmt.Sprintf("http-test-%d", dbSeq.Add(1))})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{t: t, store: st, logs: logs}
	env.user = env.createUser("ada@example.com", false)
	env.admin = env.createUser("admin@example.com", true)

	pages, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("web.NewRenderer() error = %v", err)
	}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := cache.NewInMemoryCache()

	lc := &lifecycle.State{}
	lc.SetReady(true)
	deps := Deps{
		Predictions: service.NewPredictionService(service.PredictionConfig{Store: st, Cache: c, Clock: clock, Logger: logger}),
		Contacts:    service.NewContactService(st, nil, clock, logger),
		Climate:     service.NewClimateDataService(c, time.Minute, logger),
		Dashboards:  service.NewDashboardService(st, st, 10, logger),
		Users:       st,
		Sessions:    auth.NewSessions([]byte(testSecret), false),
		Pages:       pages,
		Lifecycle:   lc,
		Traffic:     traffic.NewTracker(),
		Logger:      logger,
	}
	var ro RouterOptions
	for _, opt := range opts {
		opt(&deps, &ro)
	}

	env.handler = NewHandler(deps)
	env.server = httptest.NewServer(NewRouter(env.handler, ro))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) createUser(email string, admin bool) models.User {
	e.t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		e.t.Fatalf("HashPassword() error = %v", err)
	}
	u, err := e.store.CreateUser(context.Background(), models.User{Name: "Test", Email: email, PasswordHash: hash, IsAdmin: admin})
	if err != nil {
		e.t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

// client returns a cookie-keeping client that does not follow redirects.
func (e *testEnv) client() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// loggedIn returns a client with a session for email.
func (e *testEnv) loggedIn(email string) *http.Client {
	e.t.Helper()
	c := e.client()
	resp := e.postForm(c, "/login", url.Values{"email": {email}, "password": {testPassword}})
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		e.t.Fatalf("login as %s: status = %d location = %q", email, resp.StatusCode, resp.Header.Get("Location"))
	}
	return c
}

func (e *testEnv) get(c *http.Client, path string) *http.Response {
	e.t.Helper()
	resp, err := c.Get(e.server.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postForm(c *http.Client, path string, form url.Values) *http.Response {
	e.t.Helper()
	resp, err := c.PostForm(e.server.URL+path, form)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) sendJSON(c *http.Client, method, path, body string) *http.Response {
	e.t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		e.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}
