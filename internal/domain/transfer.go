/**
 * @description
 * This file defines the core domain models for the transfer-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are decimal.Decimal values. Quoted conversions are rounded to two
 *   decimal places once, at creation time, and frozen onto the record.
 * - The financial fields (currencies, exchange rate, rate id) never change
 *   after creation; every later mutation goes through a status-guarded update.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer statuses. A transfer starts as pending and ends in exactly one of
// completed, failed, or cancelled. Refund is the cancelled status with the
// Refunded flag set; see Outcome for the disambiguated view.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Receipt slots on a transfer.
const (
	ReceiptSlotFrom = "from"
	ReceiptSlotTo   = "to"
)

// Actor recorded on a cancellation. User withdrawals hard-delete the record,
// so only admin cancellations are ever written.
const CancelledByAdmin = "admin"

// Transfer is the central record of a cross-currency money movement request
// and its lifecycle status. It maps directly to the `transfers` table.
type Transfer struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`

	// Financials, frozen at creation.
	FromAmount      decimal.Decimal `json:"from_amount"`
	FromCurrency    string          `json:"from_currency"`
	ToAmount        decimal.Decimal `json:"to_amount"`
	ToCurrency      string          `json:"to_currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	RateID          string          `json:"rate_id"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	PointsSpent     int64           `json:"points_spent"`
	TotalFromAmount decimal.Decimal `json:"total_from_amount"`
	TotalToAmount   decimal.Decimal `json:"total_to_amount"`

	// Recipient snapshot, copied by value at creation. Later edits to a saved
	// recipient never retroactively change a past transfer.
	Recipient RecipientDetails `json:"recipient"`

	FromReceipt *Receipt `json:"from_receipt,omitempty"`
	ToReceipt   *Receipt `json:"to_receipt,omitempty"`

	RejectionReason    *string `json:"rejection_reason,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
	RefundReason       *string `json:"refund_reason,omitempty"`
	Refunded           bool    `json:"refunded"`
	CancelledBy        *string `json:"cancelled_by,omitempty"`

	AdminNotes []AdminNote `json:"admin_notes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

// RecipientDetails is the beneficiary snapshot frozen onto a transfer.
type RecipientDetails struct {
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	PhoneNumber   string `json:"phone_number"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// Receipt is uploaded proof-of-payment metadata attached to a funding slot.
type Receipt struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AdminNote is one entry in a transfer's append-only operator note trail.
type AdminNote struct {
	ActorID    uuid.UUID `json:"actor_id"`
	ActorEmail string    `json:"actor_email"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Outcome is the disambiguated terminal state of a transfer. The stored
// status reuses `cancelled` for refunds; Outcome gives consumers a single
// value to branch on instead of a status plus a boolean.
type Outcome string

const (
	OutcomeActive    Outcome = "active"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeRefunded  Outcome = "refunded"
)

// Outcome reports the transfer's effective terminal state, or OutcomeActive
// while it is still pending or processing.
func (t *Transfer) Outcome() Outcome {
	switch t.Status {
	case StatusCompleted:
		return OutcomeCompleted
	case StatusFailed:
		return OutcomeFailed
	case StatusCancelled:
		if t.Refunded {
			return OutcomeRefunded
		}
		return OutcomeCancelled
	default:
		return OutcomeActive
	}
}

// IsActive reports whether the transfer still occupies the user's single
// active-transfer slot.
func (t *Transfer) IsActive() bool {
	return t.Status == StatusPending || t.Status == StatusProcessing
}

// IsTerminal reports whether the transfer has reached a final status.
func (t *Transfer) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed || t.Status == StatusCancelled
}

// RateSnapshot is the rate catalog entry a transfer is quoted against. The
// rate and currencies are copied onto the transfer at creation.
type RateSnapshot struct {
	RateID       string          `json:"rate_id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
}

// CreateTransferRequest is the DTO for initiating a transfer.
type CreateTransferRequest struct {
	RateID     string           `json:"rate_id"`
	FromAmount decimal.Decimal  `json:"from_amount"`
	Recipient  RecipientDetails `json:"recipient"`
	UsePoints  bool             `json:"use_points"`
}

// TransferListOptions controls pagination and filtering for transfer listings.
// Cursor is a keyset cursor over (created_at, id) descending; ExcludeStatus
// supports admin views such as "everything past review" (status != pending).
type TransferListOptions struct {
	Status        string
	ExcludeStatus string
	UserID        *uuid.UUID
	Limit         int
	Cursor        *TransferCursor
}

// TransferCursor marks the position after the last row of the previous page.
type TransferCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        uuid.UUID `json:"id"`
}

// TransferPage is one page of a transfer listing.
type TransferPage struct {
	Transfers  []Transfer      `json:"transfers"`
	NextCursor *TransferCursor `json:"next_cursor,omitempty"`
}

// AuditLogEntry records one admin-triggered transition or mutation. This is
// the only durable trail of why an adjudication happened.
type AuditLogEntry struct {
	ID             uuid.UUID       `json:"id"`
	AdminID        uuid.UUID       `json:"admin_id"`
	AdminEmail     string          `json:"admin_email"`
	Action         string          `json:"action"`
	TransferID     uuid.UUID       `json:"transfer_id"`
	PreviousStatus string          `json:"previous_status"`
	NewStatus      string          `json:"new_status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Reason         *string         `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BulkTransitionResult reports the per-id outcome of a bulk status change.
// One id's failure never aborts the rest of the batch.
type BulkTransitionResult struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// TransferStatusEvent is the payload published when a transfer changes
// status. The notification service fans it out to push/email.
type TransferStatusEvent struct {
	TransferID   uuid.UUID `json:"transfer_id"`
	UserID       uuid.UUID `json:"user_id"`
	Status       string    `json:"status"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	NotifyAdmins bool      `json:"notify_admins"`
	Timestamp    time.Time `json:"timestamp"`
}
