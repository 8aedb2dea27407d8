package strategy

import (
	"context"
	"fmt"
	"strings"
)

// Spain implements CountryStrategy for DNI/NIE documents, modeled on
// the original Python ES strategy (CIRBE-simulated provider).
type Spain struct{}

const (
	spainReviewThresholdEUR      = 15000.0
	spainMaxDebtToIncomeRatio    = 0.60
	spainMinPaymentHistoryScore  = 50
	spainMinAccountAgeMonths     = 6
	dniCheckLetters              = "TRWAGMYFPDXBNJZSQVHLCKE"
)

func (Spain) CountryCode() string { return "ES" }
func (Spain) CountryName() string { return "España" }
func (Spain) Currency() string    { return "EUR" }
func (Spain) SupportedDocumentTypes() []string {
	return []string{"DNI", "NIE"}
}

func normalizeDoc(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

func (Spain) ValidateDocument(in LoanInput) *ValidationResult {
	result := NewValidationResult()
	doc := normalizeDoc(in.DocumentNumber)

	switch strings.ToUpper(in.DocumentType) {
	case "DNI":
		validateDNI(result, doc)
	case "NIE":
		validateNIE(result, doc)
	default:
		result.AddError(fmt.Sprintf("unsupported document type %q for Spain, expected DNI or NIE", in.DocumentType))
	}
	return result
}

func validateDNI(result *ValidationResult, dni string) {
	if len(dni) != 9 {
		result.AddError(fmt.Sprintf("DNI must be 9 characters (8 digits + 1 letter), got %d", len(dni)))
		return
	}
	numberPart, letter := dni[:8], dni[8]
	if !isAllDigits(numberPart) {
		result.AddError("DNI must start with 8 digits")
		return
	}
	if letter < 'A' || letter > 'Z' {
		result.AddError("DNI must end with a letter")
		return
	}
	n := atoiUnsafe(numberPart)
	expected := dniCheckLetters[n%23]
	if byte(letter) != expected {
		result.AddError(fmt.Sprintf("invalid DNI checksum, expected letter %q", string(expected)))
	}
}

func validateNIE(result *ValidationResult, nie string) {
	if len(nie) != 9 {
		result.AddError(fmt.Sprintf("NIE must be 9 characters, got %d", len(nie)))
		return
	}
	first := nie[0]
	prefix, ok := map[byte]string{'X': "0", 'Y': "1", 'Z': "2"}[first]
	if !ok {
		result.AddError("NIE must start with X, Y, or Z")
		return
	}
	digits := nie[1:8]
	if !isAllDigits(digits) {
		result.AddError("NIE must have 7 digits after the prefix")
		return
	}
	n := atoiUnsafe(prefix + digits)
	expected := dniCheckLetters[n%23]
	if nie[8] != expected {
		result.AddError(fmt.Sprintf("invalid NIE checksum, expected letter %q", string(expected)))
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func atoiUnsafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func (Spain) ValidateBusinessRules(in LoanInput, banking BankingInfo) *ValidationResult {
	result := NewValidationResult()

	if in.AmountRequested > spainReviewThresholdEUR {
		result.RequiresReview = true
		result.AddWarning(fmt.Sprintf("amount exceeds review threshold of %.2f EUR", spainReviewThresholdEUR))
		result.AddRiskFactor("high_amount")
	}

	if banking.MonthlyObligations > 0 && in.MonthlyIncome > 0 {
		estimatedPayment := in.AmountRequested / 36
		ratio := (banking.MonthlyObligations + estimatedPayment) / in.MonthlyIncome
		result.AddRiskFactor(fmt.Sprintf("debt_to_income_ratio=%.4f", ratio))
		if ratio > spainMaxDebtToIncomeRatio {
			result.AddError(fmt.Sprintf("debt-to-income ratio %.1f%% exceeds maximum allowed %.0f%%", ratio*100, spainMaxDebtToIncomeRatio*100))
		}
	}

	if banking.PaymentHistoryScore < spainMinPaymentHistoryScore && banking.PaymentHistoryScore > 0 {
		result.AddError(fmt.Sprintf("payment history score %.0f is below minimum required %d", banking.PaymentHistoryScore, spainMinPaymentHistoryScore))
	}

	if banking.AccountAgeMonths > 0 && banking.AccountAgeMonths < spainMinAccountAgeMonths {
		result.AddWarning(fmt.Sprintf("account age %d months is below recommended %d months", banking.AccountAgeMonths, spainMinAccountAgeMonths))
	}

	if banking.HasDefaults {
		result.RequiresReview = true
		result.AddWarning(fmt.Sprintf("applicant has %d previous defaults, manual review required", banking.DefaultCount))
		result.AddRiskFactor("has_defaults")
	}

	return result
}

func (Spain) FetchBankingInfo(ctx context.Context, in LoanInput) (BankingInfo, error) {
	seed := documentSeed(in.DocumentNumber)
	return BankingInfo{
		ProviderName:        "CIRBE_ES",
		CreditScore:         600 + (seed % 300),
		TotalDebt:           float64(seed * 100),
		PaymentHistoryScore: float64(60 + (seed % 40)),
		AccountAgeMonths:    12 + (seed % 120),
		HasDefaults:         seed < 100,
		DefaultCount:        boolToCount(seed < 100, 1),
		MonthlyObligations:  float64(200 + (seed % 800)),
		AvailableCredit:     float64(5000 + (seed % 20000)),
		EmploymentVerified:  seed%10 > 2,
		IncomeVerified:      seed%10 > 3,
		RawData: map[string]interface{}{
			"provider":  "CIRBE",
			"report_id": fmt.Sprintf("CIRBE-%06d", seed),
		},
	}, nil
}

func (s Spain) CalculateRiskScore(in LoanInput, banking BankingInfo) (int, bool) {
	score := 500

	if in.MonthlyIncome > 0 {
		ratio := in.AmountRequested / in.MonthlyIncome
		ratioScore := clampInt(int(ratio*50), 0, 300)
		score += ratioScore
	}

	if banking.CreditScore > 0 {
		creditFactor := maxInt(0, 300-(banking.CreditScore-600))
		score = score - 150 + creditFactor
	}
	if banking.PaymentHistoryScore > 0 {
		historyFactor := 200 - int(banking.PaymentHistoryScore*2)
		score += historyFactor
	}
	if banking.HasDefaults {
		score += 100 + banking.DefaultCount*50
	}

	score = clampInt(score, 0, 1000)
	requiresReview := in.AmountRequested > spainReviewThresholdEUR || banking.HasDefaults
	return score, requiresReview
}

func boolToCount(b bool, n int) int {
	if b {
		return n
	}
	return 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
