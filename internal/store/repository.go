/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the transfer-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/adamsend/transfer-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
//
// Every status change goes through ApplyTransition, a compare-and-set: the
// row is updated only while its current status matches the expected one, so
// two concurrent transitions from the same source state cannot both apply
// (and cannot double-fire settlement or notifications).
type Repository interface {
	// Transfer lifecycle
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error
	FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, opts domain.TransferListOptions) (*domain.TransferPage, error)
	ApplyTransition(ctx context.Context, transferID uuid.UUID, expectedStatus string, mutation TransitionMutation) (*domain.Transfer, error)
	DeleteTransfer(ctx context.Context, transferID uuid.UUID, userID uuid.UUID, expectedStatus string) error

	// Receipts and notes
	SetReceipt(ctx context.Context, transferID uuid.UUID, slot string, receipt *domain.Receipt) (*domain.Transfer, error)
	AppendAdminNote(ctx context.Context, transferID uuid.UUID, note domain.AdminNote) (*domain.Transfer, error)

	// Loyalty points
	GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	SetPointsBalance(ctx context.Context, userID uuid.UUID, points int64) error
	AddPointsBalance(ctx context.Context, userID uuid.UUID, delta int64) (int64, error)

	// Audit trail
	InsertAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error

	// Expiry sweep
	FindExpiredPendingTransfers(ctx context.Context, now time.Time, limit int) ([]domain.Transfer, error)
}

// TransitionMutation carries the field updates applied together with a
// status change. Nil pointer fields are left untouched; receipt slots use the
// dedicated SetReceipt method so a transition never silently replaces
// evidence. The frozen financial columns are deliberately absent.
type TransitionMutation struct {
	NewStatus          string
	RejectionReason    *string
	CancellationReason *string
	RefundReason       *string
	CancelledBy        *string
	Refunded           *bool
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	RefundedAt         *time.Time
	Note               *domain.AdminNote
}
