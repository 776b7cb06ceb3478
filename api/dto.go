/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts travel as JSON strings ("1250.00"), never floats. Clients parse
  them with their own decimal library; nothing rounds in transit.

VALIDATION:
  Structural validation (parse errors) happens in handlers; business
  validation lives in the ledger package.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Route definitions
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sahakar/ledger-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// OutletDTO represents an outlet in API responses.
type OutletDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Active    bool   `json:"active"`
	Timezone  string `json:"timezone,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateOutletRequest is the request to register an outlet.
type CreateOutletRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Timezone string `json:"timezone,omitempty"`
}

// DailyRecordDTO represents a day's ledger header.
type DailyRecordDTO struct {
	ID               string `json:"id"`
	OutletID         string `json:"outlet_id"`
	BusinessDate     string `json:"business_date"`
	Status           string `json:"status"`
	OpeningCash      string `json:"opening_cash"`
	OpeningUPI       string `json:"opening_upi"`
	OpeningConfirmed bool   `json:"opening_confirmed"`
	ClosingCash      string `json:"closing_cash"`
	ClosingUPI       string `json:"closing_upi"`
	TotalIncome      string `json:"total_income"`
	TotalExpense     string `json:"total_expense"`
	LockedAt         string `json:"locked_at,omitempty"`
	LockedBy         string `json:"locked_by,omitempty"`
}

// SetOpeningRequest sets and confirms the day's baseline.
type SetOpeningRequest struct {
	OpeningCash string `json:"opening_cash"`
	OpeningUPI  string `json:"opening_upi"`
}

// UnlockRequest carries the mandatory unlock reason.
type UnlockRequest struct {
	Reason string `json:"reason"`
}

// SplitDTO is one leg of a transaction's payment split.
type SplitDTO struct {
	Mode   string `json:"mode"`
	Amount string `json:"amount"`
}

// CreateEntryRequest posts a new transaction to today's ledger.
type CreateEntryRequest struct {
	Type        string     `json:"type"`
	Category    string     `json:"category"`
	Amount      string     `json:"amount"`
	Splits      []SplitDTO `json:"splits"`
	Description string     `json:"description,omitempty"`
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID           string     `json:"id"`
	OutletID     string     `json:"outlet_id"`
	EntryNumber  string     `json:"entry_number"`
	Type         string     `json:"type"`
	Category     string     `json:"category"`
	Amount       string     `json:"amount"`
	Splits       []SplitDTO `json:"splits"`
	Description  string     `json:"description,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    string     `json:"created_at"`
	BusinessDate string     `json:"business_date"`
	IsReversal   bool       `json:"is_reversal"`
	ReversedOf   string     `json:"reversed_of,omitempty"`
}

// ReverseRequest posts a reversal for a transaction.
type ReverseRequest struct {
	Reason string `json:"reason"`
}

// ClosureDTO represents a monthly closure snapshot.
type ClosureDTO struct {
	ID           string `json:"id"`
	OutletID     string `json:"outlet_id"`
	Month        string `json:"month"`
	Status       string `json:"status"`
	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expense"`
	OpeningCash  string `json:"opening_cash"`
	ClosingCash  string `json:"closing_cash"`
	ClosedAt     string `json:"closed_at,omitempty"`
	ClosedBy     string `json:"closed_by,omitempty"`
	ReopenReason string `json:"reopen_reason,omitempty"`
}

// ReopenRequest carries the mandatory reopen reason.
type ReopenRequest struct {
	Reason string `json:"reason"`
}

// PermissionDTO is the permission engine's answer for one entry.
type PermissionDTO struct {
	Allowed bool   `json:"allowed"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
}

// AnomalyDTO represents a detected or ingested anomaly.
type AnomalyDTO struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Severity        string         `json:"severity"`
	OutletID        string         `json:"outlet_id"`
	BusinessDate    string         `json:"business_date"`
	Description     string         `json:"description"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	DetectedAt      string         `json:"detected_at"`
	ResolvedAt      string         `json:"resolved_at,omitempty"`
	ResolutionNotes string         `json:"resolution_notes,omitempty"`
}

// IngestAnomalyRequest records an externally observed anomaly.
type IngestAnomalyRequest struct {
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	BusinessDate string `json:"business_date"`
	Description  string `json:"description"`
}

// ResolveAnomalyRequest closes an open anomaly.
type ResolveAnomalyRequest struct {
	Notes string `json:"notes"`
}

// AuditEntryDTO represents one audit-trail entry.
type AuditEntryDTO struct {
	ID         string         `json:"id"`
	At         string         `json:"at"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	OutletID   string         `json:"outlet_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// CounterDTO exposes an outlet's sequence counters.
type CounterDTO struct {
	OutletID        string `json:"outlet_id"`
	NextEntrySeq    int64  `json:"next_entry_seq"`
	NextCustomerSeq int64  `json:"next_customer_seq"`
}

// NumberDTO is an allocated display number.
type NumberDTO struct {
	Number string `json:"number"`
}

// LockedDatesDTO lists the locked business dates in a range.
type LockedDatesDTO struct {
	OutletID string   `json:"outlet_id"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Locked   []string `json:"locked"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toOutletDTO(o ledger.Outlet) OutletDTO {
	return OutletDTO{
		ID:        string(o.ID),
		Name:      o.Name,
		Code:      o.Code,
		Active:    o.Active,
		Timezone:  o.Timezone,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

func toRecordDTO(rec ledger.DailyRecord) DailyRecordDTO {
	dto := DailyRecordDTO{
		ID:               string(rec.ID),
		OutletID:         string(rec.OutletID),
		BusinessDate:     rec.BusinessDate.String(),
		Status:           string(rec.Status),
		OpeningCash:      rec.OpeningCash.String(),
		OpeningUPI:       rec.OpeningUPI.String(),
		OpeningConfirmed: rec.OpeningConfirmed,
		ClosingCash:      rec.ClosingCash.String(),
		ClosingUPI:       rec.ClosingUPI.String(),
		TotalIncome:      rec.TotalIncome.String(),
		TotalExpense:     rec.TotalExpense.String(),
		LockedBy:         rec.LockedBy,
	}
	if rec.LockedAt != nil {
		dto.LockedAt = rec.LockedAt.Format(time.RFC3339)
	}
	return dto
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	splits := make([]SplitDTO, len(tx.Splits))
	for i, s := range tx.Splits {
		splits[i] = SplitDTO{Mode: string(s.Mode), Amount: s.Amount.String()}
	}
	return TransactionDTO{
		ID:           string(tx.ID),
		OutletID:     string(tx.OutletID),
		EntryNumber:  tx.EntryNumber,
		Type:         string(tx.Type),
		Category:     tx.Category,
		Amount:       tx.Amount.String(),
		Splits:       splits,
		Description:  tx.Description,
		CreatedBy:    tx.CreatedBy,
		CreatedAt:    tx.CreatedAt.Format(time.RFC3339),
		BusinessDate: tx.BusinessDate.String(),
		IsReversal:   tx.IsReversal,
		ReversedOf:   string(tx.ReversedOf),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toClosureDTO(c ledger.MonthlyClosure) ClosureDTO {
	dto := ClosureDTO{
		ID:           string(c.ID),
		OutletID:     string(c.OutletID),
		Month:        c.Month.String(),
		Status:       string(c.Status),
		TotalIncome:  c.TotalIncome.String(),
		TotalExpense: c.TotalExpense.String(),
		OpeningCash:  c.OpeningCash.String(),
		ClosingCash:  c.ClosingCash.String(),
		ClosedBy:     c.ClosedBy,
		ReopenReason: c.ReopenReason,
	}
	if c.ClosedAt != nil {
		dto.ClosedAt = c.ClosedAt.Format(time.RFC3339)
	}
	return dto
}

func toAnomalyDTO(a ledger.Anomaly) AnomalyDTO {
	dto := AnomalyDTO{
		ID:              string(a.ID),
		Type:            string(a.Type),
		Severity:        string(a.Severity),
		OutletID:        string(a.OutletID),
		BusinessDate:    a.BusinessDate.String(),
		Description:     a.Description,
		Metrics:         a.Metrics,
		DetectedAt:      a.DetectedAt.Format(time.RFC3339),
		ResolutionNotes: a.ResolutionNotes,
	}
	if a.ResolvedAt != nil {
		dto.ResolvedAt = a.ResolvedAt.Format(time.RFC3339)
	}
	return dto
}

func toAuditDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		At:         e.At.Format(time.RFC3339),
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		OutletID:   string(e.OutletID),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Severity:   string(e.Severity),
		Reason:     e.Reason,
		Details:    e.Details,
	}
}

func parseSplits(dtos []SplitDTO) ([]ledger.ModeAmount, error) {
	splits := make([]ledger.ModeAmount, len(dtos))
	for i, s := range dtos {
		amount, err := decimal.NewFromString(s.Amount)
		if err != nil {
			return nil, err
		}
		splits[i] = ledger.ModeAmount{Mode: ledger.PaymentMode(s.Mode), Amount: amount}
	}
	return splits, nil
}
