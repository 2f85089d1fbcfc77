package filing

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/taxdesk/internal/common"
)

const (
	MinTaxYear      = 2020
	MaxDetailsRunes = 1000
)

// Draft carries owner-editable fields for create and edit.
type Draft struct {
	TaxYear         int        `json:"taxYear"`
	IncomeType      IncomeType `json:"incomeType"`
	EstimatedIncome *float64   `json:"estimatedIncome"`
	Details         *string    `json:"details"`
}

// Normalize maps a zero or NaN estimate and blank details to nil.
func (d *Draft) Normalize() {
	if d.EstimatedIncome != nil && (*d.EstimatedIncome == 0 || math.IsNaN(*d.EstimatedIncome)) {
		d.EstimatedIncome = nil
	}
	if d.Details != nil && *d.Details == "" {
		d.Details = nil
	}
}

// Validate checks d against the rules in force at now. The draft should be
// normalised first.
func (d *Draft) Validate(now time.Time) error {
	if d.TaxYear < MinTaxYear || d.TaxYear > now.Year() {
		return &common.ValidationError{
			Reason: common.InvalidField,
			Field:  "taxYear",
			Detail: fmt.Sprintf("must be between %d and %d", MinTaxYear, now.Year()),
		}
	}

	known := false
	for _, t := range IncomeTypes {
		if d.IncomeType == t {
			known = true
			break
		}
	}
	if !known {
		return &common.ValidationError{Reason: common.InvalidField, Field: "incomeType", Detail: "unknown income type"}
	}

	if d.EstimatedIncome != nil && (*d.EstimatedIncome < 0 || math.IsInf(*d.EstimatedIncome, 0)) {
		return &common.ValidationError{Reason: common.InvalidField, Field: "estimatedIncome", Detail: "must be a positive number"}
	}

	if d.Details != nil && utf8.RuneCountInString(*d.Details) > MaxDetailsRunes {
		return &common.ValidationError{
			Reason: common.InvalidField,
			Field:  "details",
			Detail: fmt.Sprintf("must be at most %d characters", MaxDetailsRunes),
		}
	}

	return nil
}
