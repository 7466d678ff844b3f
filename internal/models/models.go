package models

import "time"

// User is a registered account. PasswordHash is a bcrypt hash and never serialized.
type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	DateRegistered time.Time `json:"date_registered"`
	IsAdmin        bool      `json:"is_admin"`
}

// ContactStatus is the triage state of a contact message.
type ContactStatus string

const (
	ContactPending   ContactStatus = "pending"
	ContactResponded ContactStatus = "responded"
	ContactClosed    ContactStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactPending, ContactResponded, ContactClosed:
		return true
	}
	return false
}

type ContactMessage struct {
	ID      int64         `json:"id"`
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	Message string        `json:"message"`
	Date    time.Time     `json:"date"`
	Status  ContactStatus `json:"status"`
}

// Prediction is a saved assessment belonging to a user.
type Prediction struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	City                string    `json:"city"`
	Population          int       `json:"population"`
	TemperatureIncrease float64   `json:"temperature_increase"`
	UrbanDensity        string    `json:"urban_density"`
	Infrastructure      string    `json:"infrastructure"`
	RiskLevel           string    `json:"risk_level"`
	RiskScore           float64   `json:"risk_score"`
	Date                time.Time `json:"date"`
}

// Assessment is the full result of a risk prediction as returned to callers.
// Plot fields hold base64-encoded PNGs and are empty when charts are disabled.
type Assessment struct {
	City                string   `json:"city"`
	Population          int      `json:"population"`
	TemperatureIncrease float64  `json:"temperature_increase"`
	UrbanDensity        string   `json:"urban_density"`
	Infrastructure      string   `json:"infrastructure"`
	RiskLevel           string   `json:"risk_level"`
	RiskScore           float64  `json:"risk_score"`
	RainfallPlot        string   `json:"rainfall_plot,omitempty"`
	RiskPlot            string   `json:"risk_plot,omitempty"`
	TemperaturePlot     string   `json:"temperature_plot,omitempty"`
	RiskFactors         []string `json:"risk_factors"`
	Recommendations     []string `json:"recommendations"`
	CSVData             string   `json:"csv_data"`
	Saved               bool     `json:"saved"`
}

// DataPoint is a single yearly observation in a climate series.
type DataPoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// ClimateData is the payload of GET /api/climate-data.
type ClimateData struct {
	Temperature []DataPoint `json:"temperature"`
	Rainfall    []DataPoint `json:"rainfall"`
}

// Dashboard is what a logged-in user sees on /dashboard.
// Fallback is true when storage failed and the records are sample data.
type Dashboard struct {
	Predictions []Prediction     `json:"predictions"`
	Contacts    []ContactMessage `json:"contacts"`
	Fallback    bool             `json:"fallback"`
}
