package models

import "time"

// LeadKind names the table a lead is persisted to.
type LeadKind string

const (
	LeadValuation LeadKind = "valuation"
	LeadTestDrive LeadKind = "test_drive"
	LeadCallback  LeadKind = "callback"
)

// Lead is a record captured by a flow's terminal action.
type Lead interface {
	Kind() LeadKind
}

// ValuationLead holds the ten valuation slots.
type ValuationLead struct {
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Location    string    `json:"location"`
	Brand       string    `json:"brand"`
	Model       string    `json:"model"`
	Year        string    `json:"year"`
	Fuel        string    `json:"fuel"`
	Kms         string    `json:"kms"`
	Owner       string    `json:"owner"`
	Condition   string    `json:"condition"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (ValuationLead) Kind() LeadKind { return LeadValuation }

// TestDriveBooking is a confirmed test drive.
type TestDriveBooking struct {
	UserPhone     string    `json:"user_phone"`
	Car           string    `json:"car"`
	CarID         int64     `json:"car_id,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	HasLicense    bool      `json:"has_license"`
	HomeTestDrive bool      `json:"home_test_drive"`
	Address       string    `json:"address,omitempty"`
	PreferredDay  string    `json:"preferred_day,omitempty"`
	PreferredSlot string    `json:"preferred_slot,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

func (TestDriveBooking) Kind() LeadKind { return LeadTestDrive }

// CallbackRequest asks the team to call the user back.
type CallbackRequest struct {
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Reason        string    `json:"reason"`
	PreferredTime string    `json:"preferred_time"`
	RequestedAt   time.Time `json:"requested_at"`
}

func (CallbackRequest) Kind() LeadKind { return LeadCallback }
