package strategy

import (
	"context"
	"fmt"
)

// Brazil implements CountryStrategy for CPF documents, modeled on the
// original Python BR strategy (Serasa/SPC-simulated provider).
type Brazil struct{}

const (
	brazilReviewThresholdBRL  = 100000.0
	brazilMinSerasaScore      = 500
	brazilMaxCommitmentRatio  = 0.35
)

func (Brazil) CountryCode() string              { return "BR" }
func (Brazil) CountryName() string              { return "Brasil" }
func (Brazil) Currency() string                 { return "BRL" }
func (Brazil) SupportedDocumentTypes() []string { return []string{"CPF"} }

func (Brazil) ValidateDocument(in LoanInput) *ValidationResult {
	result := NewValidationResult()

	if in.DocumentType != "CPF" {
		result.AddError(fmt.Sprintf("unsupported document type %q for Brazil, expected CPF", in.DocumentType))
		return result
	}

	cpf := stripSeparators(in.DocumentNumber)
	if len(cpf) != 11 {
		result.AddError(fmt.Sprintf("CPF must be 11 digits, got %d", len(cpf)))
		return result
	}
	if !isAllDigits(cpf) {
		result.AddError("CPF must contain only digits")
		return result
	}
	allSame := true
	for i := 1; i < len(cpf); i++ {
		if cpf[i] != cpf[0] {
			allSame = false
			break
		}
	}
	if allSame {
		result.AddError("invalid CPF: all digits are the same")
		return result
	}
	if !validCPFCheckDigits(cpf) {
		result.AddError("invalid CPF: check digits do not match")
	}

	return result
}

func validCPFCheckDigits(cpf string) bool {
	total := 0
	for i := 0; i < 9; i++ {
		total += int(cpf[i]-'0') * (10 - i)
	}
	remainder := total % 11
	firstCheck := 0
	if remainder >= 2 {
		firstCheck = 11 - remainder
	}
	if int(cpf[9]-'0') != firstCheck {
		return false
	}

	total = 0
	for i := 0; i < 10; i++ {
		total += int(cpf[i]-'0') * (11 - i)
	}
	remainder = total % 11
	secondCheck := 0
	if remainder >= 2 {
		secondCheck = 11 - remainder
	}
	return int(cpf[10]-'0') == secondCheck
}

func (Brazil) ValidateBusinessRules(in LoanInput, banking BankingInfo) *ValidationResult {
	result := NewValidationResult()

	if in.AmountRequested > brazilReviewThresholdBRL {
		result.RequiresReview = true
		result.AddWarning(fmt.Sprintf("amount exceeds review threshold of %.2f BRL", brazilReviewThresholdBRL))
		result.AddRiskFactor("high_amount")
	}

	if banking.CreditScore > 0 {
		result.AddRiskFactor(fmt.Sprintf("serasa_score=%d", banking.CreditScore))
		if banking.CreditScore < brazilMinSerasaScore {
			result.AddError(fmt.Sprintf("Serasa score %d is below minimum required %d", banking.CreditScore, brazilMinSerasaScore))
		}
		if banking.HasDefaults {
			result.RequiresReview = true
			result.AddWarning(fmt.Sprintf("applicant has %d negative records in Serasa/SPC, manual review required", banking.DefaultCount))
			result.AddRiskFactor("negativado")
		}
	}

	if in.MonthlyIncome > 0 {
		estimatedPayment := in.AmountRequested / 36
		totalCommitment := banking.MonthlyObligations + estimatedPayment
		commitmentRatio := totalCommitment / in.MonthlyIncome
		result.AddRiskFactor(fmt.Sprintf("commitment_ratio=%.4f", commitmentRatio))
		if commitmentRatio > brazilMaxCommitmentRatio {
			result.AddError(fmt.Sprintf("monthly commitment ratio %.1f%% exceeds maximum allowed %.0f%%", commitmentRatio*100, brazilMaxCommitmentRatio*100))
		}
	} else {
		result.AddError("monthly income must be greater than zero")
	}

	return result
}

func (Brazil) FetchBankingInfo(ctx context.Context, in LoanInput) (BankingInfo, error) {
	seed := documentSeed(in.DocumentNumber)
	return BankingInfo{
		ProviderName:        "SERASA_BR",
		CreditScore:         300 + (seed % 600),
		TotalDebt:           float64(seed * 200),
		PaymentHistoryScore: float64(45 + (seed % 55)),
		AccountAgeMonths:    6 + (seed % 150),
		HasDefaults:         seed < 180,
		DefaultCount:        brazilDefaultCount(seed),
		MonthlyObligations:  float64(500 + (seed % 5000)),
		AvailableCredit:     float64(2000 + (seed % 30000)),
		EmploymentVerified:  seed%10 > 3,
		IncomeVerified:      seed%10 > 4,
		RawData: map[string]interface{}{
			"provider":   "Serasa Experian",
			"protocol":   fmt.Sprintf("SERASA-%010d", seed),
			"negativado": seed < 180,
		},
	}, nil
}

func brazilDefaultCount(seed int) int {
	switch {
	case seed < 120:
		return 1
	case seed < 180:
		return 2
	default:
		return 0
	}
}

func (Brazil) CalculateRiskScore(in LoanInput, banking BankingInfo) (int, bool) {
	score := 400

	if in.MonthlyIncome > 0 {
		estimatedPayment := in.AmountRequested / 36
		commitmentRatio := (banking.MonthlyObligations + estimatedPayment) / in.MonthlyIncome
		score += clampInt(int(commitmentRatio*857), 0, 300)
	}

	if banking.CreditScore > 0 {
		serasaFactor := maxInt(0, 400-int(float64(banking.CreditScore-300)*0.67))
		score = score - 200 + serasaFactor
	}
	if banking.HasDefaults {
		score += 150 + banking.DefaultCount*75
	}

	score = clampInt(score, 0, 1000)
	requiresReview := in.AmountRequested > brazilReviewThresholdBRL || banking.HasDefaults
	return score, requiresReview
}
