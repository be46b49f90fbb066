/*
handlers.go - HTTP API handlers for the lending engine

PURPOSE:
  Exposes the amortization engine and version manager via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Loans:
    GET    /api/loans                       List registered loans
    POST   /api/loans                       Register a loan
    GET    /api/loans/{id}                  Loan summary with derived values
    GET    /api/loans/{id}/schedule         Generated amortization schedule
    GET    /api/loans/{id}/rates            Rate segments between two dates

  Overrides:
    POST   /api/loans/{id}/overrides/payment-amount
    POST   /api/loans/{id}/overrides/rate
    POST   /api/loans/{id}/overrides/term-rate
    POST   /api/loans/{id}/overrides/extension
    POST   /api/loans/{id}/overrides/balance-modification
    POST   /api/loans/{id}/overrides/payment-date

  DSI:
    POST   /api/loans/{id}/dsi/payments     Record a payment fact
    GET    /api/loans/{id}/dsi/history      Payment facts for a term (?term=N)
    GET    /api/loans/{id}/dsi/impact       Aggregated savings/penalty

  Versions:
    GET    /api/loans/{id}/versions          History (?include_deleted=true)
    POST   /api/loans/{id}/versions          Commit current state
    GET    /api/loans/{id}/versions/preview  Preview pending changes
    POST   /api/loans/{id}/versions/{vid}/rollback
    DELETE /api/loans/{id}/versions/{vid}    Soft delete

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Loan or version not found
  - 409: Conflict (duplicate active override, rollback to current)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/amort"
	"github.com/warp/lending-engine/calendar"
	"github.com/warp/lending-engine/overrides"
	"github.com/warp/lending-engine/store/sqlite"
	"github.com/warp/lending-engine/version"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Each registered loan
// owns one engine/manager pair; the map is the single-writer boundary.
type Handler struct {
	DB *sqlite.DB

	mu    sync.RWMutex
	loans map[string]*version.Manager
}

// NewHandler creates a new handler backed by the given database.
func NewHandler(db *sqlite.DB) *Handler {
	return &Handler{
		DB:    db,
		loans: make(map[string]*version.Manager),
	}
}

func (h *Handler) manager(id string) (*version.Manager, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	mgr, ok := h.loans[id]
	return mgr, ok
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dtos := make([]LoanDTO, 0, len(h.loans))
	for id, mgr := range h.loans {
		dtos = append(dtos, toLoanDTO(id, mgr.Engine()))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Loan id is required", nil)
		return
	}

	cfg, err := configFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan configuration", err)
		return
	}
	engine, err := amort.NewEngine(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan configuration", err)
		return
	}

	h.mu.Lock()
	if _, exists := h.loans[req.ID]; exists {
		h.mu.Unlock()
		writeError(w, http.StatusConflict, "Loan already registered", nil)
		return
	}
	mgr := version.NewManager(engine, h.DB.ForLoan(req.ID))
	h.loans[req.ID] = mgr
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, toLoanDTO(req.ID, engine))
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := h.manager(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(id, mgr.Engine()))
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := h.manager(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}

	engine := mgr.Engine()
	schedule := engine.CalculateAmortizationPlan()
	totals := schedule.Totals()
	snap := engine.Snapshot()

	writeJSON(w, http.StatusOK, ScheduleDTO{
		LoanID:         id,
		EMI:            snap.EMI,
		EndDate:        snap.EndDate,
		Entries:        snap.Schedule,
		TotalPayments:  totals.Payments.String(),
		TotalInterest:  totals.Interest.String(),
		TotalPrincipal: totals.Principal.String(),
	})
}

func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mgr, ok := h.manager(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}

	start, err := calendar.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	end, err := calendar.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return
	}

	segments := mgr.Engine().GetInterestRatesBetweenDates(start, end)
	dtos := make([]RateSegmentDTO, 0, len(segments))
	for _, seg := range segments {
		dtos = append(dtos, RateSegmentDTO{
			Start: calendar.FormatDate(seg.Start),
			End:   calendar.FormatDate(seg.End),
			Rate:  seg.Rate.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OVERRIDE HANDLERS
// =============================================================================

func (h *Handler) AddPaymentAmount(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req PaymentAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	err = mgr.Engine().AddTermPaymentAmount(overrides.TermPaymentAmount{
		Term: req.Term, Amount: amount, Active: true,
	})
	if err != nil {
		writeOverrideError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) AddRateOverride(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req RateOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := calendar.ParseDate(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	end, err := calendar.ParseDate(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate", err)
		return
	}
	err = mgr.Engine().AddRateOverride(overrides.RateOverride{
		Start: start, End: end, Rate: rate, Active: true,
	})
	if err != nil {
		writeOverrideError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) AddTermRate(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req TermRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate", err)
		return
	}
	err = mgr.Engine().AddTermInterestRateOverride(overrides.TermInterestRateOverride{
		Term: req.Term, Rate: rate, Active: true,
	})
	if err != nil {
		writeOverrideError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) AddExtension(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req TermExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ext := overrides.TermExtension{
		Quantity:                           req.Quantity,
		EMIRecalculationMode:               overrides.EMIRecalculationMode(req.RecalculationMode),
		RecalculationTerm:                  req.RecalculationTerm,
		IgnoreSkipTermsForEMIRecalculation: req.IgnoreSkipTerms,
		Active:                             true,
	}
	if req.EffectiveDate != "" {
		effective, err := calendar.ParseDate(req.EffectiveDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective date (use YYYY-MM-DD)", err)
			return
		}
		ext.EffectiveDate = effective
	}
	mgr.Engine().AddTermExtension(ext)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) AddBalanceModification(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req BalanceModificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	effective, err := calendar.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective date (use YYYY-MM-DD)", err)
		return
	}
	err = mgr.Engine().AddBalanceModification(overrides.BalanceModification{
		ID:            req.ID,
		Amount:        amount,
		Type:          overrides.ModificationType(req.Type),
		EffectiveDate: effective,
		Reason:        req.Reason,
		Active:        true,
	})
	if err != nil {
		writeOverrideError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) AddChangePaymentDate(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req ChangePaymentDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	newDate, err := calendar.ParseDate(req.NewDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid new date (use YYYY-MM-DD)", err)
		return
	}
	err = mgr.Engine().AddChangePaymentDate(overrides.ChangePaymentDate{
		Term: req.Term, NewDate: newDate, Active: true,
	})
	if err != nil {
		writeOverrideError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// =============================================================================
// DSI HANDLERS
// =============================================================================

func (h *Handler) AddDSIPayment(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req DSIPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	payDate, err := calendar.ParseDate(req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment date (use YYYY-MM-DD)", err)
		return
	}
	fact := amort.PaymentFact{Term: req.Term, PaymentDate: payDate}
	if fact.PrincipalPaid, err = parseDecimalOrZero(req.PrincipalPaid); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid principal paid", err)
		return
	}
	if fact.InterestPaid, err = parseDecimalOrZero(req.InterestPaid); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid interest paid", err)
		return
	}
	if fact.FeesPaid, err = parseDecimalOrZero(req.FeesPaid); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fees paid", err)
		return
	}

	mgr.Engine().AddDSIPayment(fact)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) GetDSIHistory(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	term, err := strconv.Atoi(r.URL.Query().Get("term"))
	if err != nil || term < 0 {
		writeError(w, http.StatusBadRequest, "Invalid term (use ?term=N)", err)
		return
	}
	facts := mgr.Engine().GetDSIPaymentHistory(term)
	out := make([]DSIPaymentDTO, 0, len(facts))
	for _, f := range facts {
		out = append(out, DSIPaymentDTO{
			Term:          f.Term,
			PaymentDate:   calendar.FormatDate(f.PaymentDate),
			PrincipalPaid: f.PrincipalPaid.String(),
			InterestPaid:  f.InterestPaid.String(),
			FeesPaid:      f.FeesPaid.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetDSIImpact(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	impact := mgr.Engine().TotalDSIImpact()
	writeJSON(w, http.StatusOK, DSIImpactDTO{
		Savings:   impact.Savings.String(),
		Penalty:   impact.Penalty.String(),
		NetAmount: impact.NetAmount.String(),
	})
}

// =============================================================================
// VERSION HANDLERS
// =============================================================================

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	history, err := mgr.GetVersionHistory(r.Context(), includeDeleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load version history", err)
		return
	}
	dtos := make([]VersionDTO, 0, len(history))
	for _, v := range history {
		dtos = append(dtos, toVersionDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CommitVersion(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req CommitRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	v, err := mgr.CommitTransaction(r.Context(), req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to commit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVersionDTO(v))
}

func (h *Handler) PreviewVersion(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	changes, err := mgr.PreviewChanges()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to preview changes", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewDTO{
		InputChanges:  changes.Input,
		OutputChanges: changes.Output,
	})
}

func (h *Handler) RollbackVersion(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	var req RollbackRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	v, err := mgr.Rollback(r.Context(), chi.URLParam(r, "vid"), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, version.ErrVersionNotFound):
			writeError(w, http.StatusNotFound, "Version not found", err)
		case errors.Is(err, version.ErrRollbackToCurrent):
			writeError(w, http.StatusConflict, "Cannot roll back to the current version", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to roll back", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toVersionDTO(v))
}

func (h *Handler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	mgr, ok := h.manager(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Loan not found", nil)
		return
	}
	if err := mgr.DeleteVersion(r.Context(), chi.URLParam(r, "vid")); err != nil {
		if errors.Is(err, version.ErrVersionNotFound) {
			writeError(w, http.StatusNotFound, "Version not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete version", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// HELPERS
// =============================================================================

func configFromRequest(req CreateLoanRequest) (amort.Config, error) {
	loanAmount, err := decimal.NewFromString(req.LoanAmount)
	if err != nil {
		return amort.Config{}, err
	}
	annualRate, err := decimal.NewFromString(req.AnnualInterestRate)
	if err != nil {
		return amort.Config{}, err
	}
	startDate, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		return amort.Config{}, err
	}
	cal, err := calendar.New(calendar.Convention(req.CalendarConvention))
	if err != nil {
		return amort.Config{}, err
	}

	cfg := amort.Config{
		LoanAmount:        loanAmount,
		AnnualRate:        annualRate,
		Term:              req.Term,
		StartDate:         startDate,
		Calendar:          cal,
		RoundingMethod:    amort.RoundingMethod(req.RoundingMethod),
		FlushMethod:       amort.FlushMethod(req.FlushMethod),
		PreBillDays:       req.PreBillDays,
		BillingModel:      overrides.BillingModel(req.BillingModel),
		AllowRateAbove100: req.AllowRateAbove100,
	}
	if req.FirstPaymentDate != "" {
		first, err := calendar.ParseDate(req.FirstPaymentDate)
		if err != nil {
			return amort.Config{}, err
		}
		cfg.FirstPaymentDate = first
	}
	return cfg, nil
}

func toLoanDTO(id string, engine *amort.Engine) LoanDTO {
	engine.CalculateAmortizationPlan()
	cfg := engine.Config()
	return LoanDTO{
		ID:         id,
		LoanAmount: cfg.LoanAmount.String(),
		AnnualRate: cfg.AnnualRate.String(),
		Term:       cfg.Term,
		ActualTerm: engine.ActualTerm(),
		StartDate:  calendar.FormatDate(cfg.StartDate),
		EndDate:    calendar.FormatDate(engine.EndDate()),
		EMI:        engine.EMI().String(),
	}
}

func parseDecimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func writeOverrideError(w http.ResponseWriter, err error) {
	if errors.Is(err, overrides.ErrDuplicateActiveOverride) {
		writeError(w, http.StatusConflict, "Duplicate active override", err)
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid override", err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
