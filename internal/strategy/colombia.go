package strategy

import (
	"context"
	"fmt"
)

// Colombia implements CountryStrategy for Cédula de Ciudadanía / Cédula
// de Extranjería documents, modeled on the original Python CO strategy
// (DataCrédito/TransUnion-simulated provider).
type Colombia struct{}

const (
	colombiaReviewThresholdCOP       = 50000000.0
	colombiaMaxTotalDebtToIncomeRatio = 0.50
	colombiaMinCreditScore            = 500
)

func (Colombia) CountryCode() string              { return "CO" }
func (Colombia) CountryName() string              { return "Colombia" }
func (Colombia) Currency() string                 { return "COP" }
func (Colombia) SupportedDocumentTypes() []string { return []string{"CC", "CE"} }

func (Colombia) ValidateDocument(in LoanInput) *ValidationResult {
	result := NewValidationResult()
	doc := stripSeparators(in.DocumentNumber)

	switch in.DocumentType {
	case "CC":
		if !isAllDigits(doc) {
			result.AddError("Cédula de Ciudadanía must contain only digits")
			return result
		}
		if len(doc) < 6 || len(doc) > 10 {
			result.AddError(fmt.Sprintf("Cédula de Ciudadanía must be 6-10 digits, got %d", len(doc)))
			return result
		}
		if doc[0] == '0' {
			result.AddError("Cédula de Ciudadanía cannot start with 0")
		}
	case "CE":
		if !isAllDigits(doc) {
			result.AddError("Cédula de Extranjería must contain only digits")
			return result
		}
		if len(doc) < 6 || len(doc) > 7 {
			result.AddError(fmt.Sprintf("Cédula de Extranjería must be 6-7 digits, got %d", len(doc)))
		}
	default:
		result.AddError(fmt.Sprintf("unsupported document type %q for Colombia, expected CC or CE", in.DocumentType))
	}

	return result
}

func stripSeparators(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '-' || c == '.' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

func (Colombia) ValidateBusinessRules(in LoanInput, banking BankingInfo) *ValidationResult {
	result := NewValidationResult()

	if in.AmountRequested > colombiaReviewThresholdCOP {
		result.RequiresReview = true
		result.AddWarning(fmt.Sprintf("amount exceeds review threshold of %.0f COP", colombiaReviewThresholdCOP))
		result.AddRiskFactor("high_amount")
	}

	if in.MonthlyIncome > 0 {
		estimatedNewPayment := in.AmountRequested / 48
		totalMonthlyDebt := banking.MonthlyObligations + estimatedNewPayment
		debtRatio := totalMonthlyDebt / in.MonthlyIncome
		result.AddRiskFactor(fmt.Sprintf("total_debt_to_income_ratio=%.4f", debtRatio))
		if debtRatio > colombiaMaxTotalDebtToIncomeRatio {
			result.AddError(fmt.Sprintf("total debt-to-income ratio %.1f%% exceeds maximum allowed %.0f%%", debtRatio*100, colombiaMaxTotalDebtToIncomeRatio*100))
		}

		if banking.TotalDebt > 0 {
			annualDebtRatio := banking.TotalDebt / (in.MonthlyIncome * 12)
			if annualDebtRatio > 2 {
				result.AddWarning(fmt.Sprintf("existing debt is %.1fx annual income, higher risk applicant", annualDebtRatio))
			}
		}
	}

	if banking.CreditScore > 0 {
		result.AddRiskFactor(fmt.Sprintf("credit_score=%d", banking.CreditScore))
		if banking.CreditScore < colombiaMinCreditScore {
			result.AddError(fmt.Sprintf("DataCrédito score %d is below minimum required %d", banking.CreditScore, colombiaMinCreditScore))
		}
		if banking.HasDefaults {
			result.RequiresReview = true
			result.AddWarning(fmt.Sprintf("applicant reported in centrales de riesgo with %d negative records", banking.DefaultCount))
			result.AddRiskFactor("has_defaults")
		}
	}

	return result
}

func (Colombia) FetchBankingInfo(ctx context.Context, in LoanInput) (BankingInfo, error) {
	seed := documentSeed(in.DocumentNumber)
	return BankingInfo{
		ProviderName:        "DATACREDITO_CO",
		CreditScore:         300 + (seed % 500),
		TotalDebt:           float64(seed * 50000),
		PaymentHistoryScore: float64(40 + (seed % 60)),
		AccountAgeMonths:    3 + (seed % 120),
		HasDefaults:         seed < 200,
		DefaultCount:        colombiaDefaultCount(seed),
		MonthlyObligations:  float64(200000 + (seed % 3000000)),
		AvailableCredit:     float64(1000000 + (seed % 20000000)),
		EmploymentVerified:  seed%10 > 4,
		IncomeVerified:      seed%10 > 5,
		RawData: map[string]interface{}{
			"provider":       "DataCrédito TransUnion",
			"report_number":  fmt.Sprintf("DC-CO-%08d", seed),
		},
	}, nil
}

func colombiaDefaultCount(seed int) int {
	switch {
	case seed < 150:
		return 1
	case seed < 200:
		return 2
	default:
		return 0
	}
}

func (Colombia) CalculateRiskScore(in LoanInput, banking BankingInfo) (int, bool) {
	score := 350

	if in.MonthlyIncome > 0 && banking.MonthlyObligations > 0 {
		ratio := (banking.MonthlyObligations + in.AmountRequested/48) / in.MonthlyIncome
		score += clampInt(int(ratio*700), 0, 350)
	}

	if banking.CreditScore > 0 {
		creditFactor := maxInt(0, 350-int(float64(banking.CreditScore-300)*0.7))
		score = score - 175 + creditFactor
	}
	if banking.HasDefaults {
		score += 150 + banking.DefaultCount*75
	}

	score = clampInt(score, 0, 1000)
	requiresReview := in.AmountRequested > colombiaReviewThresholdCOP || banking.HasDefaults
	return score, requiresReview
}
