/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to transfers, loyalty points, and the admin audit log.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - The `transfers` table carries a partial unique index on (user_id) WHERE
 *   status IN ('pending','processing'); it is the database-level backstop for
 *   the one-active-transfer invariant and surfaces as ErrActiveTransferExists.
 * - ApplyTransition is the single write path for status changes. It updates
 *   the row only while the current status matches the caller's expectation,
 *   so a lost race shows up as ErrStatusConflict instead of a double apply.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adamsend/transfer-service/internal/domain"
)

var (
	ErrTransferNotFound     = errors.New("transfer not found")
	ErrActiveTransferExists = errors.New("an active transfer already exists for this user")
	ErrStatusConflict       = errors.New("transfer status does not match expected status")
)

const activeTransferConstraint = "transfers_one_active_per_user"

// transferColumns is the shared select list scanned by scanTransfer.
const transferColumns = `
	id, user_id, status,
	from_amount, from_currency, to_amount, to_currency,
	exchange_rate, rate_id, discount_amount, points_spent,
	total_from_amount, total_to_amount,
	recipient_full_name, recipient_email, recipient_phone_number,
	recipient_bank_name, recipient_account_number, recipient_account_name,
	from_receipt, to_receipt,
	rejection_reason, cancellation_reason, refund_reason, refunded, cancelled_by,
	admin_notes,
	created_at, updated_at, expires_at, completed_at, cancelled_at, refunded_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanTransfer(row pgxRow) (*domain.Transfer, error) {
	var t domain.Transfer
	var fromReceipt, toReceipt, adminNotes []byte

	err := row.Scan(
		&t.ID, &t.UserID, &t.Status,
		&t.FromAmount, &t.FromCurrency, &t.ToAmount, &t.ToCurrency,
		&t.ExchangeRate, &t.RateID, &t.DiscountAmount, &t.PointsSpent,
		&t.TotalFromAmount, &t.TotalToAmount,
		&t.Recipient.FullName, &t.Recipient.Email, &t.Recipient.PhoneNumber,
		&t.Recipient.BankName, &t.Recipient.AccountNumber, &t.Recipient.AccountName,
		&fromReceipt, &toReceipt,
		&t.RejectionReason, &t.CancellationReason, &t.RefundReason, &t.Refunded, &t.CancelledBy,
		&adminNotes,
		&t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt, &t.CompletedAt, &t.CancelledAt, &t.RefundedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(fromReceipt) > 0 {
		var r domain.Receipt
		if err := json.Unmarshal(fromReceipt, &r); err != nil {
			return nil, fmt.Errorf("failed to decode from_receipt: %w", err)
		}
		t.FromReceipt = &r
	}
	if len(toReceipt) > 0 {
		var r domain.Receipt
		if err := json.Unmarshal(toReceipt, &r); err != nil {
			return nil, fmt.Errorf("failed to decode to_receipt: %w", err)
		}
		t.ToReceipt = &r
	}
	if len(adminNotes) > 0 {
		if err := json.Unmarshal(adminNotes, &t.AdminNotes); err != nil {
			return nil, fmt.Errorf("failed to decode admin_notes: %w", err)
		}
	}

	return &t, nil
}

// CreateTransfer persists a new pending transfer with its frozen financial and
// recipient snapshot. The partial unique index rejects a second active
// transfer for the same user.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	notes, err := json.Marshal(transfer.AdminNotes)
	if err != nil {
		return fmt.Errorf("failed to encode admin_notes: %w", err)
	}
	if transfer.AdminNotes == nil {
		notes = []byte("[]")
	}

	query := `
		INSERT INTO transfers (
			id, user_id, status,
			from_amount, from_currency, to_amount, to_currency,
			exchange_rate, rate_id, discount_amount, points_spent,
			total_from_amount, total_to_amount,
			recipient_full_name, recipient_email, recipient_phone_number,
			recipient_bank_name, recipient_account_number, recipient_account_name,
			admin_notes, created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $21, $22
		)
	`
	_, err = r.db.Exec(ctx, query,
		transfer.ID, transfer.UserID, transfer.Status,
		transfer.FromAmount, transfer.FromCurrency, transfer.ToAmount, transfer.ToCurrency,
		transfer.ExchangeRate, transfer.RateID, transfer.DiscountAmount, transfer.PointsSpent,
		transfer.TotalFromAmount, transfer.TotalToAmount,
		transfer.Recipient.FullName, transfer.Recipient.Email, transfer.Recipient.PhoneNumber,
		transfer.Recipient.BankName, transfer.Recipient.AccountNumber, transfer.Recipient.AccountName,
		notes, transfer.CreatedAt, transfer.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeTransferConstraint {
			return ErrActiveTransferExists
		}
		return err
	}
	return nil
}

// FindTransferByID retrieves a single transfer.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT` + transferColumns + ` FROM transfers WHERE id = $1`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListTransfers returns one page of transfers ordered by created_at
// descending, using a keyset cursor over (created_at, id). Admin callers may
// filter by arbitrary status or exclude one (e.g., status != pending).
func (r *PostgresRepository) ListTransfers(ctx context.Context, opts domain.TransferListOptions) (*domain.TransferPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.UserID != nil {
		conditions = append(conditions, "user_id = "+arg(*opts.UserID))
	}
	if opts.Status != "" {
		conditions = append(conditions, "status = "+arg(opts.Status))
	}
	if opts.ExcludeStatus != "" {
		conditions = append(conditions, "status <> "+arg(opts.ExcludeStatus))
	}
	if opts.Cursor != nil {
		conditions = append(conditions, fmt.Sprintf("(created_at, id) < (%s, %s)",
			arg(opts.Cursor.CreatedAt), arg(opts.Cursor.ID)))
	}

	query := `SELECT` + transferColumns + ` FROM transfers`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	// Fetch one extra row to learn whether another page exists.
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &domain.TransferPage{}
	if len(transfers) > limit {
		transfers = transfers[:limit]
		last := transfers[len(transfers)-1]
		page.NextCursor = &domain.TransferCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	page.Transfers = transfers
	return page, nil
}

// ApplyTransition performs the compare-and-set status change. The row is
// updated only while its status equals expectedStatus; otherwise the caller
// gets ErrStatusConflict (or ErrTransferNotFound if the id is unknown).
func (r *PostgresRepository) ApplyTransition(ctx context.Context, transferID uuid.UUID, expectedStatus string, m TransitionMutation) (*domain.Transfer, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{transferID, expectedStatus}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sets = append(sets, "status = "+arg(m.NewStatus))
	if m.RejectionReason != nil {
		sets = append(sets, "rejection_reason = "+arg(*m.RejectionReason))
	}
	if m.CancellationReason != nil {
		sets = append(sets, "cancellation_reason = "+arg(*m.CancellationReason))
	}
	if m.RefundReason != nil {
		sets = append(sets, "refund_reason = "+arg(*m.RefundReason))
	}
	if m.CancelledBy != nil {
		sets = append(sets, "cancelled_by = "+arg(*m.CancelledBy))
	}
	if m.Refunded != nil {
		sets = append(sets, "refunded = "+arg(*m.Refunded))
	}
	if m.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*m.CompletedAt))
	}
	if m.CancelledAt != nil {
		sets = append(sets, "cancelled_at = "+arg(*m.CancelledAt))
	}
	if m.RefundedAt != nil {
		sets = append(sets, "refunded_at = "+arg(*m.RefundedAt))
	}
	if m.Note != nil {
		noteJSON, err := json.Marshal(m.Note)
		if err != nil {
			return nil, fmt.Errorf("failed to encode admin note: %w", err)
		}
		sets = append(sets, fmt.Sprintf("admin_notes = admin_notes || %s::jsonb", arg(noteJSON)))
	}

	query := fmt.Sprintf(`
		UPDATE transfers
		SET %s
		WHERE id = $1 AND status = $2
		RETURNING %s
	`, strings.Join(sets, ", "), transferColumns)

	t, err := scanTransfer(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// No row matched: distinguish a missing transfer from a lost race.
	var current string
	checkErr := r.db.QueryRow(ctx, "SELECT status FROM transfers WHERE id = $1", transferID).Scan(&current)
	if checkErr != nil {
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, checkErr
	}
	return nil, fmt.Errorf("%w: expected %q, found %q", ErrStatusConflict, expectedStatus, current)
}

// DeleteTransfer hard-deletes a transfer. It only fires while the record is
// still in expectedStatus and owned by userID; user-initiated cancellation of
// an unfunded pending transfer is its single caller.
func (r *PostgresRepository) DeleteTransfer(ctx context.Context, transferID uuid.UUID, userID uuid.UUID, expectedStatus string) error {
	result, err := r.db.Exec(ctx,
		"DELETE FROM transfers WHERE id = $1 AND user_id = $2 AND status = $3",
		transferID, userID, expectedStatus,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var current string
	checkErr := r.db.QueryRow(ctx,
		"SELECT status FROM transfers WHERE id = $1 AND user_id = $2", transferID, userID,
	).Scan(&current)
	if checkErr != nil {
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return ErrTransferNotFound
		}
		return checkErr
	}
	return fmt.Errorf("%w: expected %q, found %q", ErrStatusConflict, expectedStatus, current)
}

// SetReceipt stores (or clears, when receipt is nil) the metadata for one
// receipt slot. Status preconditions are enforced by the service layer; the
// store only refuses terminal records so evidence on settled transfers stays
// immutable.
func (r *PostgresRepository) SetReceipt(ctx context.Context, transferID uuid.UUID, slot string, receipt *domain.Receipt) (*domain.Transfer, error) {
	column := "from_receipt"
	if slot == domain.ReceiptSlotTo {
		column = "to_receipt"
	}

	var value any
	if receipt != nil {
		encoded, err := json.Marshal(receipt)
		if err != nil {
			return nil, fmt.Errorf("failed to encode receipt: %w", err)
		}
		value = encoded
	}

	query := fmt.Sprintf(`
		UPDATE transfers
		SET %s = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
		RETURNING %s
	`, column, transferColumns)

	t, err := scanTransfer(r.db.QueryRow(ctx, query, transferID, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, findErr := r.FindTransferByID(ctx, transferID); findErr != nil {
				return nil, findErr
			}
			return nil, ErrStatusConflict
		}
		return nil, err
	}
	return t, nil
}

// AppendAdminNote appends one structured note to the transfer's note trail.
// Notes are append-only and allowed on any status, including terminal ones.
func (r *PostgresRepository) AppendAdminNote(ctx context.Context, transferID uuid.UUID, note domain.AdminNote) (*domain.Transfer, error) {
	noteJSON, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("failed to encode admin note: %w", err)
	}

	query := `
		UPDATE transfers
		SET admin_notes = admin_notes || $2::jsonb, updated_at = NOW()
		WHERE id = $1
		RETURNING` + transferColumns + `
	`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, transferID, noteJSON))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetPointsBalance returns the user's loyalty balance. A missing row reads as
// zero rather than an error.
func (r *PostgresRepository) GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var points int64
	err := r.db.QueryRow(ctx, "SELECT points FROM loyalty_accounts WHERE user_id = $1", userID).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return points, nil
}

// SetPointsBalance overwrites the user's loyalty balance.
func (r *PostgresRepository) SetPointsBalance(ctx context.Context, userID uuid.UUID, points int64) error {
	query := `
		INSERT INTO loyalty_accounts (user_id, points, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET points = EXCLUDED.points, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, userID, points)
	return err
}

// AddPointsBalance atomically adjusts the user's loyalty balance by delta and
// returns the new value. The single-statement upsert avoids lost updates when
// a settlement runs concurrently with a points spend.
func (r *PostgresRepository) AddPointsBalance(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	var points int64
	query := `
		INSERT INTO loyalty_accounts (user_id, points, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
			SET points = loyalty_accounts.points + EXCLUDED.points, updated_at = NOW()
		RETURNING points
	`
	if err := r.db.QueryRow(ctx, query, userID, delta).Scan(&points); err != nil {
		return 0, err
	}
	return points, nil
}

// InsertAuditEntry appends one admin audit record.
func (r *PostgresRepository) InsertAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (
			id, admin_id, admin_email, action, transfer_id,
			previous_status, new_status, amount, currency, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.AdminID, entry.AdminEmail, entry.Action, entry.TransferID,
		entry.PreviousStatus, entry.NewStatus, entry.Amount, entry.Currency, entry.Reason,
	)
	return err
}

// FindExpiredPendingTransfers returns pending transfers past their expiry
// with no funding receipt attached. Funded-but-expired records are excluded;
// those stay for admin adjudication.
func (r *PostgresRepository) FindExpiredPendingTransfers(ctx context.Context, now time.Time, limit int) ([]domain.Transfer, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT` + transferColumns + `
		FROM transfers
		WHERE status = 'pending' AND expires_at < $1 AND from_receipt IS NULL
		ORDER BY expires_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}
