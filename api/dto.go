/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Every money
  field travels as a canonical decimal string and every date as an
  ISO-8601 calendar date, matching the persisted snapshot layout.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - amort/snapshot.go: the snapshot/entry shapes reused in responses
*/
package api

import (
	"github.com/warp/lending-engine/amort"
	"github.com/warp/lending-engine/version"
)

// =============================================================================
// LOAN TYPES
// =============================================================================

// CreateLoanRequest is the request to register a loan.
type CreateLoanRequest struct {
	ID                 string `json:"id"`
	LoanAmount         string `json:"loan_amount"`
	AnnualInterestRate string `json:"annual_interest_rate"`
	Term               int    `json:"term"`
	StartDate          string `json:"start_date"`
	FirstPaymentDate   string `json:"first_payment_date,omitempty"`
	CalendarConvention string `json:"calendar_convention"`
	RoundingMethod     string `json:"rounding_method,omitempty"`
	FlushMethod        string `json:"flush_method,omitempty"`
	PreBillDays        int    `json:"pre_bill_days,omitempty"`
	BillingModel       string `json:"billing_model,omitempty"`
	AllowRateAbove100  bool   `json:"allow_rate_above_100,omitempty"`
}

// LoanDTO summarizes a loan and its derived values.
type LoanDTO struct {
	ID         string `json:"id"`
	LoanAmount string `json:"loan_amount"`
	AnnualRate string `json:"annual_interest_rate"`
	Term       int    `json:"term"`
	ActualTerm int    `json:"actual_term"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	EMI        string `json:"emi"`
}

// ScheduleDTO is the generated schedule for a loan.
type ScheduleDTO struct {
	LoanID        string             `json:"loan_id"`
	EMI           string             `json:"emi"`
	EndDate       string             `json:"end_date"`
	Entries       []amort.EntryState `json:"entries"`
	TotalPayments string             `json:"total_payments"`
	TotalInterest string             `json:"total_interest"`
	TotalPrincipal string            `json:"total_principal"`
}

// RateSegmentDTO is one contiguous span of a rate query.
type RateSegmentDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Rate  string `json:"rate"`
}

// =============================================================================
// OVERRIDE REQUESTS
// =============================================================================

type PaymentAmountRequest struct {
	Term   int    `json:"term"`
	Amount string `json:"amount"`
}

type RateOverrideRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Rate  string `json:"rate"`
}

type TermRateRequest struct {
	Term int    `json:"term"`
	Rate string `json:"rate"`
}

type TermExtensionRequest struct {
	Quantity          int    `json:"quantity"`
	EffectiveDate     string `json:"effective_date,omitempty"`
	RecalculationMode string `json:"emi_recalculation_mode,omitempty"`
	RecalculationTerm int    `json:"emi_recalculation_term,omitempty"`
	IgnoreSkipTerms   bool   `json:"ignore_skip_terms,omitempty"`
}

type BalanceModificationRequest struct {
	ID            string `json:"id"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
	EffectiveDate string `json:"effective_date"`
	Reason        string `json:"reason,omitempty"`
}

type ChangePaymentDateRequest struct {
	Term    int    `json:"term"`
	NewDate string `json:"new_date"`
}

// =============================================================================
// DSI TYPES
// =============================================================================

type DSIPaymentRequest struct {
	Term          int    `json:"term"`
	PaymentDate   string `json:"payment_date"`
	PrincipalPaid string `json:"principal_paid"`
	InterestPaid  string `json:"interest_paid,omitempty"`
	FeesPaid      string `json:"fees_paid,omitempty"`
}

type DSIPaymentDTO struct {
	Term          int    `json:"term"`
	PaymentDate   string `json:"payment_date"`
	PrincipalPaid string `json:"principal_paid"`
	InterestPaid  string `json:"interest_paid"`
	FeesPaid      string `json:"fees_paid"`
}

type DSIImpactDTO struct {
	Savings   string `json:"interest_savings"`
	Penalty   string `json:"interest_penalty"`
	NetAmount string `json:"net_amount"`
}

// =============================================================================
// VERSION TYPES
// =============================================================================

type CommitRequest struct {
	Message string `json:"message,omitempty"`
}

type RollbackRequest struct {
	Message string `json:"message,omitempty"`
}

// VersionDTO lists a version without its full snapshot body.
type VersionDTO struct {
	ID             string            `json:"version_id"`
	Number         int               `json:"version_number"`
	Timestamp      string            `json:"timestamp"`
	Message        string            `json:"commit_message,omitempty"`
	IsDeleted      bool              `json:"is_deleted"`
	IsRollback     bool              `json:"is_rollback"`
	RolledBackFrom string            `json:"rolled_back_from_version_id,omitempty"`
	InputChanges   version.ChangeSet `json:"input_changes"`
	OutputChanges  version.ChangeSet `json:"output_changes"`
}

type PreviewDTO struct {
	InputChanges  version.ChangeSet `json:"input_changes"`
	OutputChanges version.ChangeSet `json:"output_changes"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toVersionDTO(v version.Version) VersionDTO {
	return VersionDTO{
		ID:             v.ID,
		Number:         v.Number,
		Timestamp:      v.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		Message:        v.Message,
		IsDeleted:      v.IsDeleted,
		IsRollback:     v.IsRollback,
		RolledBackFrom: v.RolledBackFromVersionID,
		InputChanges:   v.InputChanges,
		OutputChanges:  v.OutputChanges,
	}
}
