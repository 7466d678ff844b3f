package validation

import (
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kjstillabower/climate-risk-service/internal/risk"
)

// MsgRequired is the message for a missing field.
const MsgRequired = "This field is required."

// Bounds for prediction inputs.
const (
	CityMinLen = 2
	CityMaxLen = 100

	PopulationMin = 1_000
	PopulationMax = 10_000_000

	TemperatureMin = 0.1
	TemperatureMax = 5.0

	NameMinLen    = 2
	NameMaxLen    = 100
	MessageMinLen = 10
)

// FieldErrors maps a form field name to its validation message.
// A nil or empty FieldErrors means the form is valid.
type FieldErrors map[string]string

// Error implements error with a stable, sorted rendering.
func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

func (fe FieldErrors) err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// LoginForm holds raw login input.
type LoginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// ValidateLogin checks that both credentials are present and the email is well formed.
// Returns the normalized email.
func ValidateLogin(f LoginForm) (string, error) {
	fe := FieldErrors{}
	email := strings.TrimSpace(f.Email)
	if email == "" {
		fe.add("email", MsgRequired)
	} else if !validEmail(email) {
		fe.add("email", "Invalid email address.")
	}
	if f.Password == "" {
		fe.add("password", MsgRequired)
	}
	return strings.ToLower(email), fe.err()
}

// ContactForm holds raw contact-form input.
type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ValidateContact enforces name length, email format and a minimum message length.
// Returns the trimmed form.
func ValidateContact(f ContactForm) (ContactForm, error) {
	fe := FieldErrors{}
	out := ContactForm{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Message: strings.TrimSpace(f.Message),
	}

	checkLength(fe, "name", out.Name, NameMinLen, NameMaxLen)
	if out.Email == "" {
		fe.add("email", MsgRequired)
	} else if !validEmail(out.Email) {
		fe.add("email", "Invalid email address.")
	}
	checkLength(fe, "message", out.Message, MessageMinLen, 0)

	return out, fe.err()
}

// PredictionForm holds raw prediction input as submitted by a browser form.
type PredictionForm struct {
	City                string
	Population          string
	TemperatureIncrease string
	UrbanDensity        string
	Infrastructure      string
}

// ValidatePrediction parses and bounds-checks a prediction form.
// Population may contain thousands separators ("1,200,000").
func ValidatePrediction(f PredictionForm) (risk.Input, error) {
	fe := FieldErrors{}
	in := risk.Input{City: strings.TrimSpace(f.City)}

	checkLength(fe, "city", in.City, CityMinLen, CityMaxLen)

	pop := strings.ReplaceAll(strings.TrimSpace(f.Population), ",", "")
	if pop == "" {
		fe.add("population", MsgRequired)
	} else if n, err := strconv.Atoi(pop); err != nil {
		fe.add("population", "Not a valid integer value.")
	} else if n < PopulationMin || n > PopulationMax {
		fe.add("population", fmt.Sprintf("Number must be between %d and %d.", PopulationMin, PopulationMax))
	} else {
		in.Population = n
	}

	temp := strings.TrimSpace(f.TemperatureIncrease)
	if temp == "" {
		fe.add("temperature_increase", MsgRequired)
	} else if v, err := strconv.ParseFloat(temp, 64); err != nil {
		fe.add("temperature_increase", "Not a valid float value.")
	} else if math.IsNaN(v) || math.IsInf(v, 0) || v < TemperatureMin || v > TemperatureMax {
		fe.add("temperature_increase", fmt.Sprintf("Number must be between %.1f and %.1f.", TemperatureMin, TemperatureMax))
	} else {
		in.TemperatureIncrease = v
	}

	if strings.TrimSpace(f.UrbanDensity) == "" {
		fe.add("urban_density", MsgRequired)
	} else if d, ok := risk.ParseDensity(f.UrbanDensity); !ok {
		fe.add("urban_density", "Not a valid choice.")
	} else {
		in.Density = d
	}

	if strings.TrimSpace(f.Infrastructure) == "" {
		fe.add("infrastructure", MsgRequired)
	} else if i, ok := risk.ParseInfrastructure(f.Infrastructure); !ok {
		fe.add("infrastructure", "Not a valid choice.")
	} else {
		in.Infrastructure = i
	}

	if err := fe.err(); err != nil {
		return risk.Input{}, err
	}
	return in, nil
}

// checkLength validates rune length; maxLen <= 0 means unbounded.
func checkLength(fe FieldErrors, field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		fe.add(field, MsgRequired)
	case n < minLen:
		fe.add(field, fmt.Sprintf("Field must be at least %d characters long.", minLen))
	case maxLen > 0 && n > maxLen:
		fe.add(field, fmt.Sprintf("Field cannot be longer than %d characters.", maxLen))
	}
}

// validEmail accepts a bare addr-spec with a dotted domain.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
