package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/ledger"
)

// OwnerHeader selects the ledger owner of a request.
const OwnerHeader = "X-Owner-ID"

// maxImportSize bounds uploaded statements.
const maxImportSize = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service     *ledger.Service
	Preferences config.Preferences

	logger logrus.FieldLogger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the ledger service.
func NewHandler(svc *ledger.Service, prefs config.Preferences, logger logrus.FieldLogger) *Handler {
	return &Handler{
		Service:     svc,
		Preferences: prefs,
		logger:      logger,
	}
}

// owner resolves the ledger owner from the request header, falling back to
// the configured owner.
func (h *Handler) owner(r *http.Request) engine.OwnerID {
	if id := strings.TrimSpace(r.Header.Get(OwnerHeader)); id != "" {
		return engine.OwnerID(id)
	}
	return engine.OwnerID(h.Preferences.Owner)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the owner's accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Service.Accounts(r.Context(), h.owner(r))
	if err != nil {
		h.fail(w, "Failed to list accounts", err)
		return
	}
	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		dtos = append(dtos, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveAccount creates or updates an account.
func (h *Handler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	var req SaveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	acct, err := h.Service.SaveAccount(r.Context(), req.toAccount(h.owner(r)))
	if err != nil {
		h.fail(w, "Failed to save account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acct))
}

// GetStatement returns the invoice view of a credit-card account. The
// reference date defaults to today.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	ref, err := dateParam(r, "ref")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ref date", err)
		return
	}
	if ref.IsZero() {
		ref = h.Service.Today()
	}
	id := engine.AccountID(chi.URLParam(r, "id"))
	st, err := h.Service.CardStatement(r.Context(), h.owner(r), id, ref)
	if err != nil {
		h.fail(w, "Failed to resolve statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// PayInvoice pays the card's last closed invoice from another account.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	var req PayInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date.IsZero() {
		req.Date = h.Service.Today()
	}
	cardID := engine.AccountID(chi.URLParam(r, "id"))
	paid, err := h.Service.PayInvoice(r.Context(), h.owner(r), cardID, engine.AccountID(req.FromAccountID), req.Date)
	if err != nil {
		h.fail(w, "Failed to pay invoice", err)
		return
	}
	settled := make([]string, 0, len(paid.Settled))
	for _, id := range paid.Settled {
		settled = append(settled, string(id))
	}
	writeJSON(w, http.StatusOK, InvoicePaymentResponse{
		Statement: toStatementDTO(paid.Statement),
		Transfer:  toEntryDTOs(paid.Transfer),
		Settled:   settled,
	})
}

// GetBalances returns the settled balance per account and in aggregate.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.Balances(r.Context(), h.owner(r))
	if err != nil {
		h.fail(w, "Failed to compute balances", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalancesDTO(b))
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns the owner's entries, optionally narrowed by
// account_id, from and to.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	entries, err := h.Service.Entries(r.Context(), engine.EntryFilter{
		OwnerID:   h.owner(r),
		AccountID: engine.AccountID(r.URL.Query().Get("account_id")),
		From:      from,
		To:        to,
	})
	if err != nil {
		h.fail(w, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// CreateEntries records an entry or expands a recurring series.
func (h *Handler) CreateEntries(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	entries, err := h.Service.CreateEntries(r.Context(), req.toDraft(h.owner(r)))
	if err != nil {
		h.fail(w, "Failed to create entries", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTOs(entries))
}

// SettleEntry confirms an entry.
func (h *Handler) SettleEntry(w http.ResponseWriter, r *http.Request) {
	var req SettleEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := engine.EntryID(chi.URLParam(r, "id"))
	e, err := h.Service.SettleEntry(r.Context(), h.owner(r), id, req.SettledOn, req.SettledAmount)
	if err != nil {
		h.fail(w, "Failed to settle entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// DeleteSeries removes a series, or its occurrences from the given date on.
func (h *Handler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	id := engine.SeriesID(chi.URLParam(r, "id"))
	if err := h.ownsSeries(r, id); err != nil {
		h.fail(w, "Failed to delete series", err)
		return
	}
	n, err := h.Service.DeleteSeries(r.Context(), id, from)
	if err != nil {
		h.fail(w, "Failed to delete series", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteSeriesResponse{SeriesID: string(id), Deleted: n})
}

// ownsSeries hides other owners' series.
func (h *Handler) ownsSeries(r *http.Request, id engine.SeriesID) error {
	entries, err := h.Service.Entries(r.Context(), engine.EntryFilter{OwnerID: h.owner(r)})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Series != nil && e.Series.ID == id {
			return nil
		}
	}
	return engine.ErrSeriesNotFound
}

// CreateTransfer moves money between two of the owner's accounts.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	legs, err := h.Service.Transfer(r.Context(), ledger.TransferRequest{
		OwnerID:     h.owner(r),
		From:        engine.AccountID(req.FromAccountID),
		To:          engine.AccountID(req.ToAccountID),
		Amount:      req.Amount,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, "Failed to record transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTOs(legs))
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns the owner's loan plans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Service.Loans(r.Context(), h.owner(r))
	if err != nil {
		h.fail(w, "Failed to list loans", err)
		return
	}
	dtos := make([]LoanPlanDTO, 0, len(plans))
	for _, p := range plans {
		dtos = append(dtos, toLoanPlanDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLoan creates a plan with all installments unpaid.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	view, err := h.Service.CreateLoan(r.Context(), req.toPlan("", h.owner(r)))
	if err != nil {
		h.fail(w, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(view))
}

// GetLoan returns a plan with its installments and summary.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Loan(r.Context(), h.owner(r), engine.LoanPlanID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(view))
}

// ReplaceLoan rewrites a plan and regenerates its installments.
func (h *Handler) ReplaceLoan(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := engine.LoanPlanID(chi.URLParam(r, "id"))
	view, err := h.Service.ReplaceLoan(r.Context(), req.toPlan(id, h.owner(r)))
	if err != nil {
		h.fail(w, "Failed to replace loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(view))
}

// SettleInstallment pays one installment.
func (h *Handler) SettleInstallment(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(chi.URLParam(r, "seq"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid installment sequence", err)
		return
	}
	var req SettleInstallmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PaidOn.IsZero() {
		req.PaidOn = h.Service.Today()
	}
	id := engine.LoanPlanID(chi.URLParam(r, "id"))
	inst, err := h.Service.SettleInstallment(r.Context(), h.owner(r), id, seq, req.PaidOn, req.PaidAmount)
	if err != nil {
		h.fail(w, "Failed to settle installment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTO(inst))
}

// RecalculateLoan resets every installment, optionally at a new rate. The
// body is optional.
func (h *Handler) RecalculateLoan(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := engine.LoanPlanID(chi.URLParam(r, "id"))
	view, err := h.Service.RecalculateLoan(r.Context(), h.owner(r), id, req.DailyRate)
	if err != nil {
		h.fail(w, "Failed to recalculate loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(view))
}

// =============================================================================
// CALCULATOR HANDLERS
// =============================================================================

// PreviewAnticipation prices a settlement without touching the ledger.
func (h *Handler) PreviewAnticipation(w http.ResponseWriter, r *http.Request) {
	var req AnticipationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	a, err := engine.Anticipate(engine.AnticipationInput{
		FaceValue:      req.FaceValue,
		DueDate:        req.DueDate,
		SettlementDate: req.SettlementDate,
		DailyRate:      req.DailyRate,
	})
	if err != nil {
		h.fail(w, "Failed to price settlement", err)
		return
	}
	if req.SettledAmount != nil {
		a = a.WithSettledAmount(req.FaceValue, *req.SettledAmount)
	}
	writeJSON(w, http.StatusOK, toAnticipationDTO(a))
}

// GetProjection projects the owner's balance months ahead. months defaults
// to the configured preference; as_of defaults to today.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	months := h.Preferences.ProjectionMonths
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid months", err)
			return
		}
		months = n
	}
	asOf, err := dateParam(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}
	p, err := h.Service.Project(r.Context(), h.owner(r), asOf, months)
	if err != nil {
		h.fail(w, "Failed to project balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectionDTO(p))
}

// =============================================================================
// IMPORT HANDLERS
// =============================================================================

// ImportStatement imports a bank statement into an account. The statement
// is either a multipart "file" field or the raw request body. A missing
// format is taken from the uploaded file's extension.
func (h *Handler) ImportStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))

	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportSize); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid multipart upload", err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing statement file", err)
			return
		}
		defer file.Close()
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
		}
		body = file
	}

	res, err := h.Service.ImportStatement(r.Context(), ledger.ImportRequest{
		OwnerID:   h.owner(r),
		AccountID: engine.AccountID(q.Get("account_id")),
		Format:    format,
		Channel:   engine.Channel(q.Get("channel")),
		Statement: body,
	})
	if err != nil {
		h.fail(w, "Failed to import statement", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResultDTO{
		Parsed:   res.Parsed,
		Skipped:  res.Skipped,
		Imported: toEntryDTOs(res.Imported),
	})
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

// LearnCategory records that a description belongs to a category.
func (h *Handler) LearnCategory(w http.ResponseWriter, r *http.Request) {
	sg := h.Service.Suggester()
	if sg == nil {
		writeError(w, http.StatusNotImplemented, "Category suggestions are disabled", nil)
		return
	}
	var req LearnCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := sg.Learn(r.Context(), h.owner(r), req.Description, engine.CategoryID(req.CategoryID)); err != nil {
		h.fail(w, "Failed to learn category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SuggestCategory suggests a category for the description in q.
func (h *Handler) SuggestCategory(w http.ResponseWriter, r *http.Request) {
	sg := h.Service.Suggester()
	if sg == nil {
		writeError(w, http.StatusNotImplemented, "Category suggestions are disabled", nil)
		return
	}
	desc := r.URL.Query().Get("q")
	id, ok, err := sg.Suggest(r.Context(), h.owner(r), desc)
	if err != nil {
		h.fail(w, "Failed to suggest category", err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionDTO{Description: desc, CategoryID: string(id), Found: ok})
}

// GetPreferences returns the presentation preferences. The owner reflects
// the request's owner.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs := h.Preferences
	prefs.Owner = string(h.owner(r))
	if prefs.HiddenWidgets == nil {
		prefs.HiddenWidgets = []string{}
	}
	writeJSON(w, http.StatusOK, prefs)
}

// =============================================================================
// HELPERS
// =============================================================================

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

// fail writes err with the status its kind maps to. Server faults are logged.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error(message)
	}
	writeError(w, status, message, err)
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInconsistent), errors.Is(err, engine.ErrDuplicateExternalID):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// dateParam reads an optional ISO date query parameter.
func dateParam(r *http.Request, name string) (engine.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return engine.Date{}, nil
	}
	d, err := engine.ParseDate(v)
	if err != nil {
		return engine.Date{}, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
