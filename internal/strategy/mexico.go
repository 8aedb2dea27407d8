package strategy

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Mexico implements CountryStrategy for CURP documents, modeled on the
// original Python MX strategy (Buró de Crédito-simulated provider).
type Mexico struct{}

const (
	mexicoReviewThresholdMXN    = 300000.0
	mexicoMaxAmountToIncomeRatio = 6.0
	mexicoMinCreditScore         = 550
)

var mexicoValidStates = map[string]bool{
	"AS": true, "BC": true, "BS": true, "CC": true, "CL": true, "CM": true,
	"CS": true, "CH": true, "DF": true, "DG": true, "GT": true, "GR": true,
	"HG": true, "JC": true, "MC": true, "MN": true, "MS": true, "NT": true,
	"NL": true, "OC": true, "PL": true, "QT": true, "QR": true, "SP": true,
	"SL": true, "SR": true, "TC": true, "TS": true, "TL": true, "VZ": true,
	"YN": true, "ZS": true, "NE": true,
}

var curpPattern = regexp.MustCompile(`^[A-Z]{4}\d{6}[HM][A-Z]{5}[A-Z0-9]\d$`)

func (Mexico) CountryCode() string               { return "MX" }
func (Mexico) CountryName() string               { return "México" }
func (Mexico) Currency() string                  { return "MXN" }
func (Mexico) SupportedDocumentTypes() []string  { return []string{"CURP"} }

func (Mexico) ValidateDocument(in LoanInput) *ValidationResult {
	result := NewValidationResult()

	if in.DocumentType != "CURP" {
		result.AddError(fmt.Sprintf("unsupported document type %q for Mexico, expected CURP", in.DocumentType))
		return result
	}

	curp := normalizeDoc(in.DocumentNumber)
	if len(curp) != 18 {
		result.AddError(fmt.Sprintf("CURP must be 18 characters, got %d", len(curp)))
		return result
	}
	if !curpPattern.MatchString(curp) {
		result.AddError("CURP format is invalid: expected 4 letters + 6 digits + gender (H/M) + 2 letters state + 3 letters + 2 chars homoclave")
		return result
	}

	dateStr := curp[4:10]
	year, yErr := strconv.Atoi(dateStr[0:2])
	month, mErr := strconv.Atoi(dateStr[2:4])
	day, dErr := strconv.Atoi(dateStr[4:6])
	if yErr != nil || mErr != nil || dErr != nil {
		result.AddError(fmt.Sprintf("invalid birth date in CURP: %s", dateStr))
	} else {
		fullYear := 1900 + year
		if year <= 30 {
			fullYear = 2000 + year
		}
		birthDate := time.Date(fullYear, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if birthDate.After(time.Now()) {
			result.AddError("birth date in CURP cannot be in the future")
		}
		age := time.Since(birthDate).Hours() / 24 / 365.25
		if age < 18 {
			result.AddError(fmt.Sprintf("applicant must be at least 18 years old, CURP indicates age of %d years", int(age)))
		}
	}

	stateCode := curp[11:13]
	if !mexicoValidStates[stateCode] {
		result.AddError(fmt.Sprintf("invalid state code %q in CURP", stateCode))
	}

	return result
}

func (Mexico) ValidateBusinessRules(in LoanInput, banking BankingInfo) *ValidationResult {
	result := NewValidationResult()

	if in.AmountRequested > mexicoReviewThresholdMXN {
		result.RequiresReview = true
		result.AddWarning(fmt.Sprintf("amount exceeds review threshold of %.2f MXN", mexicoReviewThresholdMXN))
		result.AddRiskFactor("high_amount")
	}

	if in.MonthlyIncome > 0 {
		ratio := in.AmountRequested / in.MonthlyIncome
		result.AddRiskFactor(fmt.Sprintf("amount_to_income_ratio=%.2f", ratio))
		if ratio > mexicoMaxAmountToIncomeRatio {
			result.AddError(fmt.Sprintf("requested amount is %.1fx monthly income, maximum allowed is %.0fx", ratio, mexicoMaxAmountToIncomeRatio))
		}
	} else {
		result.AddError("monthly income must be greater than zero")
	}

	if banking.CreditScore > 0 {
		result.AddRiskFactor(fmt.Sprintf("credit_score=%d", banking.CreditScore))
		if banking.CreditScore < mexicoMinCreditScore {
			result.AddError(fmt.Sprintf("Buró de Crédito score %d is below minimum required %d", banking.CreditScore, mexicoMinCreditScore))
		}
		if banking.HasDefaults {
			result.RequiresReview = true
			result.AddWarning(fmt.Sprintf("applicant has %d defaults in Buró de Crédito, manual review required", banking.DefaultCount))
			result.AddRiskFactor("has_defaults")
		}
	}

	return result
}

func (Mexico) FetchBankingInfo(ctx context.Context, in LoanInput) (BankingInfo, error) {
	seed := documentSeed(in.DocumentNumber)
	return BankingInfo{
		ProviderName:        "BURO_CREDITO_MX",
		CreditScore:         450 + (seed % 400),
		TotalDebt:           float64(seed * 500),
		PaymentHistoryScore: float64(50 + (seed % 50)),
		AccountAgeMonths:    6 + (seed % 180),
		HasDefaults:         seed < 150,
		DefaultCount:        mexicoDefaultCount(seed),
		MonthlyObligations:  float64(1000 + (seed % 15000)),
		AvailableCredit:     float64(10000 + (seed % 100000)),
		EmploymentVerified:  seed%10 > 3,
		IncomeVerified:      seed%10 > 4,
		RawData: map[string]interface{}{
			"provider": "Buró de Crédito",
			"folio":    fmt.Sprintf("BC-MX-%08d", seed),
		},
	}, nil
}

func mexicoDefaultCount(seed int) int {
	switch {
	case seed < 100:
		return 1
	case seed < 150:
		return 2
	default:
		return 0
	}
}

func (Mexico) CalculateRiskScore(in LoanInput, banking BankingInfo) (int, bool) {
	score := 400

	if in.MonthlyIncome > 0 {
		ratio := in.AmountRequested / in.MonthlyIncome
		score += clampInt(int(ratio*67), 0, 400)
	}

	if banking.CreditScore > 0 {
		creditFactor := maxInt(0, 400-int(float64(banking.CreditScore-450)*1.0))
		score = score - 200 + creditFactor
	}
	if banking.HasDefaults {
		score += 100 + banking.DefaultCount*50
	}

	score = clampInt(score, 0, 1000)
	requiresReview := in.AmountRequested > mexicoReviewThresholdMXN || banking.HasDefaults
	return score, requiresReview
}
