/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Engine types stay free
  of presentation concerns: money leaves the API as 2-decimal strings and
  dates as ISO YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Accounts:     AccountDTO, SaveAccountRequest, StatementDTO, BalancesDTO
  Entries:      EntryDTO, CreateEntryRequest, SettleEntryRequest,
                TransferRequest, PayInvoiceRequest, InvoicePaymentResponse
  Loans:        LoanPlanDTO, InstallmentDTO, LoanSummaryDTO, LoanDTO,
                LoanRequest, SettleInstallmentRequest, RecalculateRequest
  Calculators:  AnticipationRequest, AnticipationDTO, ProjectionDTO
  Import:       ImportResultDTO
  Categories:   LearnCategoryRequest, SuggestionDTO
  Scenarios:    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the service and the engine, not in DTOs. Request
  decoding only rejects malformed decimals and dates.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/ledger"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	OpeningBalance string `json:"opening_balance"`
	CreditLimit    string `json:"credit_limit,omitempty"`
	ClosingDay     int    `json:"closing_day,omitempty"`
	DueDay         int    `json:"due_day,omitempty"`
}

// SaveAccountRequest creates or updates an account.
type SaveAccountRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Kind           string          `json:"kind"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	ClosingDay     int             `json:"closing_day"`
	DueDay         int             `json:"due_day"`
}

func (r SaveAccountRequest) toAccount(owner engine.OwnerID) engine.Account {
	return engine.Account{
		ID:             engine.AccountID(r.ID),
		OwnerID:        owner,
		Name:           r.Name,
		Kind:           engine.AccountKind(r.Kind),
		OpeningBalance: r.OpeningBalance,
		CreditLimit:    r.CreditLimit,
		ClosingDay:     r.ClosingDay,
		DueDay:         r.DueDay,
	}
}

func toAccountDTO(a engine.Account) AccountDTO {
	dto := AccountDTO{
		ID:             string(a.ID),
		Name:           a.Name,
		Kind:           string(a.Kind),
		OpeningBalance: money(a.OpeningBalance),
	}
	if a.IsCreditCard() {
		dto.CreditLimit = money(a.CreditLimit)
		dto.ClosingDay = a.ClosingDay
		dto.DueDay = a.DueDay
	}
	return dto
}

// PeriodDTO is an inclusive date range.
type PeriodDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toPeriodDTO(p engine.Period) PeriodDTO {
	return PeriodDTO{Start: p.Start.String(), End: p.End.String()}
}

// StatementDTO is the invoice view of a credit-card account.
type StatementDTO struct {
	AccountID          string    `json:"account_id"`
	Reference          string    `json:"reference"`
	OpenCycle          PeriodDTO `json:"open_cycle"`
	OpenDue            string    `json:"open_due"`
	ClosedCycle        PeriodDTO `json:"closed_cycle"`
	ClosedDue          string    `json:"closed_due"`
	OpenInvoiceTotal   string    `json:"open_invoice_total"`
	ClosedInvoiceTotal string    `json:"closed_invoice_total"`
	TotalOutstanding   string    `json:"total_outstanding"`
	Limit              string    `json:"limit"`
	Available          string    `json:"available"`
}

func toStatementDTO(s engine.CardStatement) StatementDTO {
	return StatementDTO{
		AccountID:          string(s.AccountID),
		Reference:          s.Reference.String(),
		OpenCycle:          toPeriodDTO(s.OpenCycle),
		OpenDue:            s.OpenDue.String(),
		ClosedCycle:        toPeriodDTO(s.ClosedCycle),
		ClosedDue:          s.ClosedDue.String(),
		OpenInvoiceTotal:   money(s.OpenInvoiceTotal),
		ClosedInvoiceTotal: money(s.ClosedInvoiceTotal),
		TotalOutstanding:   money(s.TotalOutstanding),
		Limit:              money(s.Limit),
		Available:          money(s.Available),
	}
}

// BalancesDTO is the settled position of the owner.
type BalancesDTO struct {
	Accounts map[string]string `json:"accounts"`
	Total    string            `json:"total"`
}

func toBalancesDTO(b ledger.Balances) BalancesDTO {
	dto := BalancesDTO{Accounts: make(map[string]string, len(b.Accounts)), Total: money(b.Total)}
	for id, v := range b.Accounts {
		dto.Accounts[string(id)] = money(v)
	}
	return dto
}

// =============================================================================
// ENTRIES
// =============================================================================

// EntryDTO represents one ledger line.
type EntryDTO struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	CategoryID     string `json:"category_id,omitempty"`
	Description    string `json:"description,omitempty"`
	Direction      string `json:"direction"`
	Amount         string `json:"amount"`
	PostedOn       string `json:"posted_on"`
	Channel        string `json:"channel"`
	State          string `json:"state"`
	SettledOn      string `json:"settled_on,omitempty"`
	SettledAmount  string `json:"settled_amount,omitempty"`
	Recurrence     string `json:"recurrence"`
	SeriesID       string `json:"series_id,omitempty"`
	SeriesIndex    int    `json:"series_index,omitempty"`
	SeriesTotal    int    `json:"series_total,omitempty"`
	TransferPairID string `json:"transfer_pair_id,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
}

func toEntryDTO(e engine.Entry) EntryDTO {
	dto := EntryDTO{
		ID:             string(e.ID),
		AccountID:      string(e.AccountID),
		CategoryID:     string(e.CategoryID),
		Description:    e.Description,
		Direction:      string(e.Direction),
		Amount:         money(e.Amount),
		PostedOn:       e.PostedOn.String(),
		Channel:        string(e.Channel),
		State:          string(e.State),
		Recurrence:     string(e.Recurrence),
		TransferPairID: string(e.TransferPairID),
		ExternalID:     e.ExternalID,
	}
	if e.IsSettled() {
		dto.SettledOn = e.SettledOn.String()
		dto.SettledAmount = money(e.SettledAmount)
	}
	if e.Series != nil {
		dto.SeriesID = string(e.Series.ID)
		dto.SeriesIndex = e.Series.Index
		dto.SeriesTotal = e.Series.Total
	}
	return dto
}

func toEntryDTOs(entries []engine.Entry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e))
	}
	return out
}

// CreateEntryRequest defines an entry or a recurring series.
type CreateEntryRequest struct {
	AccountID   string          `json:"account_id"`
	CategoryID  string          `json:"category_id"`
	Description string          `json:"description"`
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	FirstDate   engine.Date     `json:"first_date"`
	Channel     string          `json:"channel"`
	Recurrence  string          `json:"recurrence"`
	Count       int             `json:"count"`
}

func (r CreateEntryRequest) toDraft(owner engine.OwnerID) engine.Draft {
	d := engine.Draft{
		OwnerID:     owner,
		AccountID:   engine.AccountID(r.AccountID),
		CategoryID:  engine.CategoryID(r.CategoryID),
		Description: r.Description,
		Direction:   engine.Direction(r.Direction),
		Amount:      r.Amount,
		FirstDate:   r.FirstDate,
		Channel:     engine.Channel(r.Channel),
		Recurrence:  engine.RecurrenceKind(r.Recurrence),
		Count:       r.Count,
	}
	if d.Recurrence == "" {
		d.Recurrence = engine.RecurrenceNone
	}
	if d.Count == 0 {
		d.Count = 1
	}
	return d
}

// SettleEntryRequest confirms an entry. A missing amount settles at face.
type SettleEntryRequest struct {
	SettledOn     engine.Date     `json:"settled_on"`
	SettledAmount decimal.Decimal `json:"settled_amount"`
}

// TransferRequest moves money between two of the owner's accounts.
type TransferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          engine.Date     `json:"date"`
	Description   string          `json:"description"`
}

// PayInvoiceRequest pays the last closed invoice of a card.
type PayInvoiceRequest struct {
	FromAccountID string      `json:"from_account_id"`
	Date          engine.Date `json:"date"`
}

// InvoicePaymentResponse reports a paid invoice.
type InvoicePaymentResponse struct {
	Statement StatementDTO `json:"statement"`
	Transfer  []EntryDTO   `json:"transfer"`
	Settled   []string     `json:"settled"`
}

// DeleteSeriesResponse reports how many occurrences were removed.
type DeleteSeriesResponse struct {
	SeriesID string `json:"series_id"`
	Deleted  int    `json:"deleted"`
}

// =============================================================================
// LOANS
// =============================================================================

// LoanPlanDTO represents a loan plan.
type LoanPlanDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Principal        string `json:"principal"`
	InstallmentValue string `json:"installment_value"`
	InstallmentCount int    `json:"installment_count"`
	DailyRate        string `json:"daily_rate"`
	MonthlyRate      string `json:"monthly_rate"`
	FirstInstallment string `json:"first_installment"`
}

func toLoanPlanDTO(p engine.LoanPlan) LoanPlanDTO {
	return LoanPlanDTO{
		ID:               string(p.ID),
		Name:             p.Name,
		Principal:        money(p.Principal),
		InstallmentValue: money(p.InstallmentValue),
		InstallmentCount: p.InstallmentCount,
		DailyRate:        p.DailyRate.String(),
		MonthlyRate:      p.MonthlyRate().String(),
		FirstInstallment: p.FirstInstallment.String(),
	}
}

// InstallmentDTO represents one loan installment.
type InstallmentDTO struct {
	Sequence        int    `json:"sequence"`
	DueDate         string `json:"due_date"`
	Face            string `json:"face"`
	Paid            bool   `json:"paid"`
	PaidOn          string `json:"paid_on,omitempty"`
	PaidAmount      string `json:"paid_amount,omitempty"`
	Anticipated     bool   `json:"anticipated"`
	DaysAnticipated int    `json:"days_anticipated"`
	Interest        string `json:"interest,omitempty"`
	Amortization    string `json:"amortization,omitempty"`
	Savings         string `json:"savings,omitempty"`
	SavingsRaw      string `json:"savings_raw,omitempty"`
}

func toInstallmentDTO(i engine.LoanInstallment) InstallmentDTO {
	dto := InstallmentDTO{
		Sequence:        i.Sequence,
		DueDate:         i.DueDate.String(),
		Face:            money(i.Face),
		Paid:            i.Paid,
		Anticipated:     i.Anticipated,
		DaysAnticipated: i.DaysAnticipated,
	}
	if i.Paid {
		dto.PaidOn = i.PaidOn.String()
		dto.PaidAmount = money(i.PaidAmount)
		dto.Interest = money(i.Interest)
		dto.Amortization = money(i.Amortization)
		dto.Savings = money(i.Savings)
		dto.SavingsRaw = money(i.SavingsRaw)
	}
	return dto
}

// LoanSummaryDTO holds a plan's totals.
type LoanSummaryDTO struct {
	Installments    int    `json:"installments"`
	PaidCount       int    `json:"paid_count"`
	AnticipatedPaid int    `json:"anticipated_paid"`
	TotalFace       string `json:"total_face"`
	TotalPaid       string `json:"total_paid"`
	TotalSavings    string `json:"total_savings"`
	TotalInterest   string `json:"total_interest"`
	TotalAmortized  string `json:"total_amortized"`
	RemainingFace   string `json:"remaining_face"`
	NextDue         string `json:"next_due,omitempty"`
}

// LoanDTO is a plan with its installments and summary.
type LoanDTO struct {
	Plan         LoanPlanDTO      `json:"plan"`
	Installments []InstallmentDTO `json:"installments"`
	Summary      LoanSummaryDTO   `json:"summary"`
}

func toLoanDTO(v *ledger.LoanView) LoanDTO {
	s := v.Summary
	dto := LoanDTO{
		Plan:         toLoanPlanDTO(v.Plan),
		Installments: make([]InstallmentDTO, 0, len(v.Installments)),
		Summary: LoanSummaryDTO{
			Installments:    s.Installments,
			PaidCount:       s.PaidCount,
			AnticipatedPaid: s.AnticipatedPaid,
			TotalFace:       money(s.TotalFace),
			TotalPaid:       money(s.TotalPaid),
			TotalSavings:    money(s.TotalSavings),
			TotalInterest:   money(s.TotalInterest),
			TotalAmortized:  money(s.TotalAmortized),
			RemainingFace:   money(s.RemainingFace),
		},
	}
	if s.NextDue != nil {
		dto.Summary.NextDue = s.NextDue.String()
	}
	for _, inst := range v.Installments {
		dto.Installments = append(dto.Installments, toInstallmentDTO(inst))
	}
	return dto
}

// LoanRequest creates or replaces a loan plan.
type LoanRequest struct {
	Name             string          `json:"name"`
	Principal        decimal.Decimal `json:"principal"`
	InstallmentValue decimal.Decimal `json:"installment_value"`
	InstallmentCount int             `json:"installment_count"`
	DailyRate        decimal.Decimal `json:"daily_rate"`
	FirstInstallment engine.Date     `json:"first_installment"`
}

func (r LoanRequest) toPlan(id engine.LoanPlanID, owner engine.OwnerID) engine.LoanPlan {
	return engine.LoanPlan{
		ID:               id,
		OwnerID:          owner,
		Name:             r.Name,
		Principal:        r.Principal,
		InstallmentValue: r.InstallmentValue,
		InstallmentCount: r.InstallmentCount,
		DailyRate:        r.DailyRate,
		FirstInstallment: r.FirstInstallment,
	}
}

// SettleInstallmentRequest pays an installment. PaidAmount overrides the
// computed present value when set.
type SettleInstallmentRequest struct {
	PaidOn     engine.Date      `json:"paid_on"`
	PaidAmount *decimal.Decimal `json:"paid_amount,omitempty"`
}

// RecalculateRequest resets a plan, optionally at a new daily rate.
type RecalculateRequest struct {
	DailyRate *decimal.Decimal `json:"daily_rate,omitempty"`
}

// =============================================================================
// CALCULATORS
// =============================================================================

// AnticipationRequest previews the price of settling a payable early or late.
type AnticipationRequest struct {
	FaceValue      decimal.Decimal  `json:"face_value"`
	DueDate        engine.Date      `json:"due_date"`
	SettlementDate engine.Date      `json:"settlement_date"`
	DailyRate      decimal.Decimal  `json:"daily_rate"`
	SettledAmount  *decimal.Decimal `json:"settled_amount,omitempty"`
}

// AnticipationDTO is a priced settlement.
type AnticipationDTO struct {
	PresentValue string `json:"present_value"`
	Savings      string `json:"savings"`
	SavingsRaw   string `json:"savings_raw"`
	Interest     string `json:"interest"`
	Amortization string `json:"amortization"`
	DaysEarly    int    `json:"days_early"`
	IsEarly      bool   `json:"is_early"`
	IsLate       bool   `json:"is_late"`
}

func toAnticipationDTO(a engine.Anticipation) AnticipationDTO {
	return AnticipationDTO{
		PresentValue: money(a.PresentValue),
		Savings:      money(a.Savings),
		SavingsRaw:   money(a.SavingsRaw),
		Interest:     money(a.Interest),
		Amortization: money(a.Amortization),
		DaysEarly:    a.DaysEarly,
		IsEarly:      a.IsEarly,
		IsLate:       a.IsLate,
	}
}

// ProjectedMonthDTO is one projected month.
type ProjectedMonthDTO struct {
	Index   int       `json:"index"`
	Period  PeriodDTO `json:"period"`
	Inflow  string    `json:"inflow"`
	Outflow string    `json:"outflow"`
	Net     string    `json:"net"`
	Balance string    `json:"balance"`
}

// ProjectionDTO is the owner's forward view.
type ProjectionDTO struct {
	AsOf           string              `json:"as_of"`
	CurrentBalance string              `json:"current_balance"`
	Months         []ProjectedMonthDTO `json:"months"`
	AtRisk         bool                `json:"at_risk"`
	MinBalance     string              `json:"min_balance"`
	MinMonth       int                 `json:"min_month"`
}

func toProjectionDTO(p *engine.Projection) ProjectionDTO {
	dto := ProjectionDTO{
		AsOf:           p.AsOf.String(),
		CurrentBalance: money(p.CurrentBalance),
		Months:         make([]ProjectedMonthDTO, 0, len(p.Months)),
		AtRisk:         p.AtRisk,
		MinBalance:     money(p.MinBalance),
		MinMonth:       p.MinMonth,
	}
	for _, m := range p.Months {
		dto.Months = append(dto.Months, ProjectedMonthDTO{
			Index:   m.Index,
			Period:  toPeriodDTO(m.Period),
			Inflow:  money(m.Inflow),
			Outflow: money(m.Outflow),
			Net:     money(m.Net),
			Balance: money(m.Balance),
		})
	}
	return dto
}

// =============================================================================
// IMPORT & CATEGORIES
// =============================================================================

// ImportResultDTO reports a statement import.
type ImportResultDTO struct {
	Parsed   int        `json:"parsed"`
	Skipped  int        `json:"skipped"`
	Imported []EntryDTO `json:"imported"`
}

// LearnCategoryRequest teaches the suggester a description's category.
type LearnCategoryRequest struct {
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
}

// SuggestionDTO is the suggester's answer for a description.
type SuggestionDTO struct {
	Description string `json:"description"`
	CategoryID  string `json:"category_id,omitempty"`
	Found       bool   `json:"found"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
