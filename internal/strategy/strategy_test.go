package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrError(t *testing.T) {
	reg := NewRegistry(Spain{}, Mexico{}, Colombia{}, Brazil{})

	s, err := reg.GetOrError("ES")
	require.NoError(t, err)
	assert.Equal(t, "ES", s.CountryCode())

	_, err = reg.GetOrError("FR")
	assert.Error(t, err)
}

func TestSpain_ValidateDocument_DNI(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantValid bool
	}{
		{"valid DNI", "12345678Z", true},
		{"wrong checksum letter", "12345678A", false},
		{"wrong length", "1234567Z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Spain{}.ValidateDocument(LoanInput{DocumentType: "DNI", DocumentNumber: tt.doc})
			assert.Equal(t, tt.wantValid, result.IsValid)
		})
	}
}

func TestMexico_ValidateDocument_CURP_RejectsBadState(t *testing.T) {
	result := Mexico{}.ValidateDocument(LoanInput{
		DocumentType:   "CURP",
		DocumentNumber: "GARC800101HQQXYZ01",
	})
	assert.False(t, result.IsValid)
}

func TestBrazil_ValidateDocument_CPF_RejectsRepeatedDigits(t *testing.T) {
	result := Brazil{}.ValidateDocument(LoanInput{DocumentType: "CPF", DocumentNumber: "11111111111"})
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "all digits are the same")
}

func TestColombia_ValidateDocument_CC_RejectsLeadingZero(t *testing.T) {
	result := Colombia{}.ValidateDocument(LoanInput{DocumentType: "CC", DocumentNumber: "0123456"})
	assert.False(t, result.IsValid)
}

func TestCalculateRiskScore_ClampedToRange(t *testing.T) {
	strategies := []CountryStrategy{Spain{}, Mexico{}, Colombia{}, Brazil{}}
	in := LoanInput{AmountRequested: 1000000, MonthlyIncome: 100}

	for _, s := range strategies {
		banking := BankingInfo{CreditScore: 300, HasDefaults: true, DefaultCount: 5, MonthlyObligations: 500}
		score, requiresReview := s.CalculateRiskScore(in, banking)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 1000)
		assert.True(t, requiresReview)
	}
}

func TestValidateAll_MergesDocumentAndBusinessErrors(t *testing.T) {
	ctx := context.Background()
	result, banking, err := ValidateAll(ctx, Mexico{}, LoanInput{
		DocumentType:    "CURP",
		DocumentNumber:  "XXXX800101HDFXYZ01",
		AmountRequested: 10,
		MonthlyIncome:   1,
	})
	require.NoError(t, err)
	assert.NotZero(t, banking.ProviderName)
	assert.False(t, result.IsValid)
}
