// Package strategy implements the pluggable per-country document
// validation, business-rule checks, simulated banking lookups and risk
// scoring named in spec §4.B. Each country lives in its own file
// (spain.go, mexico.go, colombia.go, brazil.go), grounded on the
// original strategies/*.py algorithms; Registry assembles them into a
// single immutable lookup built once at startup, per the "avoid
// package-level mutable state" design note.
package strategy

import (
	"context"
	"fmt"
	"hash/fnv"
)

// documentSeed derives a deterministic 0-999 seed from a document
// number so the simulated banking providers return reproducible data
// for the same document, mirroring the original Python prototype's use
// of a stable hash for test fixtures.
func documentSeed(document string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(document))
	return int(h.Sum32() % 1000)
}

// ValidationResult accumulates errors, warnings and risk factors across
// a document check, a business-rule check, or both merged together.
type ValidationResult struct {
	IsValid        bool
	Errors         []string
	Warnings       []string
	RequiresReview bool
	RiskFactors    []string
}

// NewValidationResult returns a result that starts valid; AddError
// flips it invalid.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{IsValid: true}
}

// AddError records a validation failure and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.IsValid = false
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a non-fatal concern; it does not affect IsValid.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddRiskFactor records a contributor to RequiresReview/risk scoring.
func (r *ValidationResult) AddRiskFactor(factor string) {
	r.RiskFactors = append(r.RiskFactors, factor)
}

// Merge folds other into r: IsValid becomes the AND of both, and all
// slices concatenate.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	if !other.IsValid {
		r.IsValid = false
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if other.RequiresReview {
		r.RequiresReview = true
	}
	r.RiskFactors = append(r.RiskFactors, other.RiskFactors...)
}

// BankingInfo is the normalized shape returned by every country's
// simulated provider lookup, regardless of the provider's native
// payload shape.
type BankingInfo struct {
	ProviderName        string
	CreditScore         int
	TotalDebt           float64
	PaymentHistoryScore float64
	AccountAgeMonths    int
	HasDefaults         bool
	DefaultCount        int
	MonthlyObligations  float64
	AvailableCredit     float64
	EmploymentVerified  bool
	IncomeVerified      bool
	RawData             map[string]interface{}
}

// ToMap renders BankingInfo for storage in the loan's banking_info
// JSONB column.
func (b BankingInfo) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider_name":         b.ProviderName,
		"credit_score":          b.CreditScore,
		"total_debt":            b.TotalDebt,
		"payment_history_score": b.PaymentHistoryScore,
		"account_age_months":    b.AccountAgeMonths,
		"has_defaults":          b.HasDefaults,
		"default_count":         b.DefaultCount,
		"monthly_obligations":   b.MonthlyObligations,
		"available_credit":      b.AvailableCredit,
		"employment_verified":   b.EmploymentVerified,
		"income_verified":       b.IncomeVerified,
		"raw_data":              b.RawData,
	}
}

// LoanInput is the subset of a loan application a strategy needs to
// validate and score, independent of the domain package's storage
// representation.
type LoanInput struct {
	DocumentType    string
	DocumentNumber  string
	FullName        string
	AmountRequested float64
	MonthlyIncome   float64
}

// CountryStrategy is implemented once per supported jurisdiction.
type CountryStrategy interface {
	CountryCode() string
	CountryName() string
	Currency() string
	SupportedDocumentTypes() []string

	ValidateDocument(in LoanInput) *ValidationResult
	ValidateBusinessRules(in LoanInput, banking BankingInfo) *ValidationResult
	FetchBankingInfo(ctx context.Context, in LoanInput) (BankingInfo, error)
	CalculateRiskScore(in LoanInput, banking BankingInfo) (score int, requiresReview bool)
}

// ValidateAll fetches banking info, runs document and business-rule
// validation against it, and merges the two results through the
// CountryStrategy interface, so the sequence is not duplicated per country.
func ValidateAll(ctx context.Context, s CountryStrategy, in LoanInput) (*ValidationResult, BankingInfo, error) {
	banking, err := s.FetchBankingInfo(ctx, in)
	if err != nil {
		return nil, BankingInfo{}, err
	}
	result := s.ValidateDocument(in)
	result.Merge(s.ValidateBusinessRules(in, banking))
	return result, banking, nil
}

// Registry is an immutable lookup of strategies by country code, built
// once at startup and never mutated afterward.
type Registry struct {
	byCode map[string]CountryStrategy
}

// NewRegistry builds a Registry from a fixed set of strategies.
func NewRegistry(strategies ...CountryStrategy) *Registry {
	byCode := make(map[string]CountryStrategy, len(strategies))
	for _, s := range strategies {
		byCode[s.CountryCode()] = s
	}
	return &Registry{byCode: byCode}
}

// Get returns the strategy for code, if registered.
func (r *Registry) Get(code string) (CountryStrategy, bool) {
	s, ok := r.byCode[code]
	return s, ok
}

// SupportedCodes lists every registered country code.
func (r *Registry) SupportedCodes() []string {
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	return codes
}

// errCountryNotSupported builds the error GetOrError returns when code
// isn't registered; callers typically wrap it via
// apperr.CountryNotSupported instead of checking this directly.
func errCountryNotSupported(code string) error {
	return fmt.Errorf("strategy: country %q not supported", code)
}

// GetOrError is Get with a descriptive error in place of the bool.
func (r *Registry) GetOrError(code string) (CountryStrategy, error) {
	s, ok := r.Get(code)
	if !ok {
		return nil, errCountryNotSupported(code)
	}
	return s, nil
}
