package model

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ErrInvalidProfile is returned when a UserProfile fails validation.
var ErrInvalidProfile = eris.New("invalid profile")

// RiskProfile is the user's stated appetite for investment risk.
type RiskProfile string

const (
	RiskLow    RiskProfile = "Low"
	RiskMedium RiskProfile = "Medium"
	RiskHigh   RiskProfile = "High"
)

// RiskProfiles lists the accepted risk profiles in display order.
var RiskProfiles = []RiskProfile{RiskLow, RiskMedium, RiskHigh}

// ParseRiskProfile maps a case-insensitive name onto a RiskProfile.
func ParseRiskProfile(s string) (RiskProfile, error) {
	for _, r := range RiskProfiles {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidProfile, "unknown risk profile %q (want Low, Medium or High)", s)
}

// Canonical field names shared by table inference and profile overrides.
const (
	FieldAge            = "age"
	FieldIncome         = "income"
	FieldExpenses       = "expenses"
	FieldRetirementAge  = "retirement_age"
	FieldCurrentSavings = "current_savings"
)

// Input bounds mirror the planner form.
const (
	MinAge           = 18
	MaxAge           = 70
	MinRetirementAge = 40
	MaxRetirementAge = 70
)

// UserProfile holds the personal-finance inputs for a single planning session.
type UserProfile struct {
	Age             int             `json:"age"`
	MonthlyIncome   decimal.Decimal `json:"monthly_income"`
	MonthlyExpenses decimal.Decimal `json:"monthly_expenses"`
	RetirementAge   int             `json:"retirement_age"`
	RiskProfile     RiskProfile     `json:"risk_profile"`
	CurrentSavings  decimal.Decimal `json:"current_savings"`
}

// DefaultProfile returns the form defaults.
func DefaultProfile() UserProfile {
	return UserProfile{
		Age:             30,
		MonthlyIncome:   decimal.NewFromInt(100000),
		MonthlyExpenses: decimal.NewFromInt(50000),
		RetirementAge:   60,
		RiskProfile:     RiskMedium,
		CurrentSavings:  decimal.Zero,
	}
}

// Validate checks the profile against the form bounds.
func (p UserProfile) Validate() error {
	if p.Age < MinAge || p.Age > MaxAge {
		return eris.Wrapf(ErrInvalidProfile, "age %d outside %d-%d", p.Age, MinAge, MaxAge)
	}
	if p.RetirementAge < MinRetirementAge || p.RetirementAge > MaxRetirementAge {
		return eris.Wrapf(ErrInvalidProfile, "retirement age %d outside %d-%d", p.RetirementAge, MinRetirementAge, MaxRetirementAge)
	}
	if p.RetirementAge <= p.Age {
		return eris.Wrapf(ErrInvalidProfile, "retirement age %d must be greater than age %d", p.RetirementAge, p.Age)
	}
	if p.MonthlyIncome.IsNegative() {
		return eris.Wrap(ErrInvalidProfile, "monthly income must not be negative")
	}
	if p.MonthlyExpenses.IsNegative() {
		return eris.Wrap(ErrInvalidProfile, "monthly expenses must not be negative")
	}
	if p.CurrentSavings.IsNegative() {
		return eris.Wrap(ErrInvalidProfile, "current savings must not be negative")
	}
	if _, err := ParseRiskProfile(string(p.RiskProfile)); err != nil {
		return err
	}
	return nil
}

// MonthlySurplus is income minus expenses. It may be negative.
func (p UserProfile) MonthlySurplus() decimal.Decimal {
	return p.MonthlyIncome.Sub(p.MonthlyExpenses)
}

// YearsToRetirement returns the years left until the target age, floored at zero.
func (p UserProfile) YearsToRetirement() int {
	if p.RetirementAge <= p.Age {
		return 0
	}
	return p.RetirementAge - p.Age
}

// ApplyOverrides replaces profile fields with values inferred from an uploaded
// table. Unknown keys are ignored. It returns the canonical names applied, in
// a stable order.
func (p *UserProfile) ApplyOverrides(o StructuredOverride) []string {
	var applied []string
	if v, ok := o[FieldAge]; ok {
		p.Age = int(math.Round(v))
		applied = append(applied, FieldAge)
	}
	if v, ok := o[FieldIncome]; ok {
		p.MonthlyIncome = decimal.NewFromFloat(v)
		applied = append(applied, FieldIncome)
	}
	if v, ok := o[FieldExpenses]; ok {
		p.MonthlyExpenses = decimal.NewFromFloat(v)
		applied = append(applied, FieldExpenses)
	}
	if v, ok := o[FieldRetirementAge]; ok {
		p.RetirementAge = int(math.Round(v))
		applied = append(applied, FieldRetirementAge)
	}
	if v, ok := o[FieldCurrentSavings]; ok {
		p.CurrentSavings = decimal.NewFromFloat(v)
		applied = append(applied, FieldCurrentSavings)
	}
	return applied
}
