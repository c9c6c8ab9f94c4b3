package model

import (
	"fmt"
	"regexp"
	"time"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyEUR Currency = "EUR"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyGBP, CurrencyEUR:
		return true
	}
	return false
}

type Condition string

const (
	ConditionExcellent Condition = "Excellent"
	ConditionGood      Condition = "Good"
	ConditionFair      Condition = "Fair"
	ConditionPoor      Condition = "Poor"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

const MinVehicleYear = 1900

// vinPattern excludes I, O and Q.
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// FormData is the vehicle listing under construction in the wizard.
type FormData struct {
	VIN             string    `json:"vin"`
	Make            string    `json:"make"`
	Model           string    `json:"model"`
	Year            int       `json:"year"`
	Mileage         int       `json:"mileage"`
	Price           float64   `json:"price"`
	Currency        Currency  `json:"currency"`
	Condition       Condition `json:"condition"`
	Registration    bool      `json:"registration"`
	Insurance       bool      `json:"insurance"`
	Inspection      bool      `json:"inspection"`
	InspectionNotes string    `json:"inspectionNotes,omitempty"`
	Signature       string    `json:"signature"`
	PrivacyAccepted bool      `json:"privacyAccepted"`
}

// DefaultFormData returns the snapshot a fresh wizard starts from.
func DefaultFormData(now time.Time) FormData {
	return FormData{
		Year:      now.Year(),
		Currency:  CurrencyUSD,
		Condition: ConditionGood,
	}
}

// Validate checks field formats. Presence of make/model is enforced later,
// when the agreement is generated, since the form is saved while incomplete.
func (f FormData) Validate(now time.Time) error {
	if f.VIN != "" && !vinPattern.MatchString(f.VIN) {
		return fmt.Errorf("%w: vin must be 17 characters (A-Z excluding I, O, Q, and 0-9)", ErrValidation)
	}
	if f.Year < MinVehicleYear || f.Year > now.Year() {
		return fmt.Errorf("%w: year must be between %d and %d", ErrValidation, MinVehicleYear, now.Year())
	}
	if f.Mileage < 0 {
		return fmt.Errorf("%w: mileage must not be negative", ErrValidation)
	}
	if f.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if !f.Currency.Valid() {
		return fmt.Errorf("%w: unsupported currency %q", ErrValidation, f.Currency)
	}
	if !f.Condition.Valid() {
		return fmt.Errorf("%w: unsupported condition %q", ErrValidation, f.Condition)
	}
	return nil
}
