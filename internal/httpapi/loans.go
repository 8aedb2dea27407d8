package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coderTtxi12/loan-system/internal/apperr"
	"github.com/coderTtxi12/loan-system/internal/domain"
	"github.com/coderTtxi12/loan-system/internal/httpapi/authn"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
	"github.com/coderTtxi12/loan-system/internal/service"
)

// loanView is the wire shape returned for a loan: document_number is
// never rendered, and full_name is decrypted for display, matching
// spec §4.A's rule that ciphertext never crosses the API boundary.
type loanView struct {
	ID              string                 `json:"id"`
	CountryCode     string                 `json:"country_code"`
	DocumentType    string                 `json:"document_type"`
	FullName        string                 `json:"full_name"`
	AmountRequested float64                `json:"amount_requested"`
	MonthlyIncome   float64                `json:"monthly_income"`
	Currency        string                 `json:"currency"`
	Status          string                 `json:"status"`
	RiskScore       *int                   `json:"risk_score"`
	RequiresReview  bool                   `json:"requires_review"`
	BankingInfo     map[string]interface{} `json:"banking_info,omitempty"`
	ExtraData       map[string]interface{} `json:"extra_data,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

func (h *Handlers) toLoanView(loan *domain.LoanApplication) loanView {
	return loanView{
		ID:              loan.ID.String(),
		CountryCode:     loan.CountryCode,
		DocumentType:    loan.DocumentType,
		FullName:        h.service.DecryptField(loan.FullName),
		AmountRequested: loan.AmountRequested,
		MonthlyIncome:   loan.MonthlyIncome,
		Currency:        loan.Currency,
		Status:          string(loan.Status),
		RiskScore:       loan.RiskScore,
		RequiresReview:  loan.RequiresReview,
		BankingInfo:     loan.BankingInfo,
		ExtraData:       loan.ExtraData,
		CreatedAt:       loan.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:       loan.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

type createLoanRequest struct {
	CountryCode     string  `json:"country_code"`
	DocumentType    string  `json:"document_type"`
	DocumentNumber  string  `json:"document_number"`
	FullName        string  `json:"full_name"`
	AmountRequested float64 `json:"amount_requested"`
	MonthlyIncome   float64 `json:"monthly_income"`
}

func (h *Handlers) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAppError(w, apperr.Validation("invalid request body", err.Error()))
		return
	}

	var actorID *uuid.UUID
	if raw := authn.UserIDFromContext(r.Context()); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actorID = &id
		}
	}

	loan, err := h.service.CreateLoan(r.Context(), service.CreateLoanInput{
		CountryCode:     strings.ToUpper(strings.TrimSpace(req.CountryCode)),
		DocumentType:    req.DocumentType,
		DocumentNumber:  req.DocumentNumber,
		FullName:        req.FullName,
		AmountRequested: req.AmountRequested,
		MonthlyIncome:   req.MonthlyIncome,
		ActorID:         actorID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toLoanView(loan))
}

func (h *Handlers) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, apperr.Validation("invalid loan id", "id"))
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toLoanView(loan))
}

type listLoansResponse struct {
	Items    []loanView `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Pages    int        `json:"pages"`
}

func (h *Handlers) listLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := parsePageParams(q)

	filter := loanstore.Filter{
		CountryCode: strings.ToUpper(strings.TrimSpace(q.Get("country_code"))),
		Status:      domain.LoanStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Limit:       page.PageSize,
		Offset:      (page.Page - 1) * page.PageSize,
	}
	if raw := strings.TrimSpace(q.Get("requires_review")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.RequiresReview = &v
		}
	}

	loans, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, h.toLoanView(loan))
	}

	stats, err := h.service.GetStatistics(r.Context(), filter.CountryCode)
	total := len(views)
	pages := 1
	if err == nil {
		total = stats.TotalCount
		if page.PageSize > 0 {
			pages = (total + page.PageSize - 1) / page.PageSize
			if pages < 1 {
				pages = 1
			}
		}
	}
	writeJSON(w, http.StatusOK, listLoansResponse{Items: views, Total: total, Page: page.Page, PageSize: page.PageSize, Pages: pages})
}

func (h *Handlers) getStatistics(w http.ResponseWriter, r *http.Request) {
	countryCode := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country_code")))
	stats, err := h.service.GetStatistics(r.Context(), countryCode)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, apperr.Validation("invalid loan id", "id"))
		return
	}
	history, err := h.service.GetHistory(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type transitionStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, apperr.Validation("invalid loan id", "id"))
		return
	}
	var req transitionStatusRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAppError(w, apperr.Validation("invalid request body", err.Error()))
		return
	}
	newStatus := domain.LoanStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

	if (newStatus == domain.StatusApproved || newStatus == domain.StatusRejected) && !authn.CanApprove(r.Context()) {
		writeAppError(w, apperr.Forbidden("role does not permit approving or rejecting loans"))
		return
	}

	var actorID *uuid.UUID
	if raw := authn.UserIDFromContext(r.Context()); raw != "" {
		if uid, err := uuid.Parse(raw); err == nil {
			actorID = &uid
		}
	}

	loan, err := h.service.TransitionStatus(r.Context(), id, newStatus, actorID, req.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toLoanView(loan))
}
