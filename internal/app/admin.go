/**
 * @description
 * Admin adjudication: the operator-initiated transitions on a transfer
 * (approve, reject, cancel, complete, refund), bulk status changes, the
 * append-only note trail, and receipt management for either slot.
 *
 * Every admin transition is CAS-guarded at the store and writes one audit
 * entry recording the previous status, new status, amount, currency, and any
 * reason. Audit and notification failures are logged, never propagated: the
 * committed financial state change must not be reverted by a downstream
 * delivery failure.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

// Admin identifies the operator performing an adjudication.
type Admin struct {
	ID    uuid.UUID
	Email string
}

// AdminApprove formally moves a pending (usually already funded) transfer
// into review. Approving a transfer that is already processing is a no-op.
func (s *Service) AdminApprove(ctx context.Context, admin Admin, transferID uuid.UUID, note string) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	switch transfer.Status {
	case domain.StatusProcessing:
		return transfer, nil
	case domain.StatusPending:
	default:
		return nil, ErrTerminalStatus
	}

	mutation := store.TransitionMutation{NewStatus: domain.StatusProcessing}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		mutation.Note = s.newNote(admin, trimmed)
	}

	updated, err := s.repo.ApplyTransition(ctx, transferID, domain.StatusPending, mutation)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, admin, auditActionApprove, transfer, updated, nil)
	s.notify(ctx, updated, "Transfer in review", "Your transfer has been moved into review.", false)
	return updated, nil
}

// AdminReject fails a non-terminal transfer, recording the rejection reason.
// Points spent on a discount are restored: the transfer never settled.
func (s *Service) AdminReject(ctx context.Context, admin Admin, transferID uuid.UUID, reason string) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.IsTerminal() {
		return nil, ErrTerminalStatus
	}

	updated, err := s.repo.ApplyTransition(ctx, transferID, transfer.Status, store.TransitionMutation{
		NewStatus:       domain.StatusFailed,
		RejectionReason: &reason,
	})
	if err != nil {
		return nil, err
	}

	s.restoreSpentPoints(ctx, "admin_reject", transfer)
	s.audit(ctx, admin, auditActionReject, transfer, updated, &reason)
	s.notify(ctx, updated, "Transfer rejected", fmt.Sprintf("Your transfer was rejected: %s", reason), false)
	return updated, nil
}

// AdminCancel cancels a non-terminal transfer. Unlike a user withdrawal the
// record is retained, with the cancelling actor and reason on it. Points
// spent on a discount are restored, as with any non-settling end state.
func (s *Service) AdminCancel(ctx context.Context, admin Admin, transferID uuid.UUID, reason string) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.IsTerminal() {
		return nil, ErrTerminalStatus
	}

	now := time.Now().UTC()
	cancelledBy := domain.CancelledByAdmin
	mutation := store.TransitionMutation{
		NewStatus:   domain.StatusCancelled,
		CancelledBy: &cancelledBy,
		CancelledAt: &now,
	}
	if strings.TrimSpace(reason) != "" {
		mutation.CancellationReason = &reason
	}

	updated, err := s.repo.ApplyTransition(ctx, transferID, transfer.Status, mutation)
	if err != nil {
		return nil, err
	}

	s.restoreSpentPoints(ctx, "admin_cancel", transfer)
	s.audit(ctx, admin, auditActionCancel, transfer, updated, &reason)
	s.notify(ctx, updated, "Transfer cancelled", "Your transfer has been cancelled.", false)
	return updated, nil
}

// AdminComplete settles a processing transfer. The loyalty reward is
// computed (including its currency normalization) before the transition so an
// FX failure aborts the operation; the balance write happens after the CAS
// commit, so a lost race cannot double-settle.
func (s *Service) AdminComplete(ctx context.Context, admin Admin, transferID uuid.UUID, note string) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.Status != domain.StatusProcessing {
		if transfer.IsTerminal() {
			return nil, ErrTerminalStatus
		}
		return nil, fmt.Errorf("%w: expected processing, found %s", ErrInvalidStatusTransition, transfer.Status)
	}

	earned, err := s.points.RewardFor(ctx, transfer)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mutation := store.TransitionMutation{
		NewStatus:   domain.StatusCompleted,
		CompletedAt: &now,
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		mutation.Note = s.newNote(admin, trimmed)
	}

	updated, err := s.repo.ApplyTransition(ctx, transferID, domain.StatusProcessing, mutation)
	if err != nil {
		return nil, err
	}

	if err := s.points.CreditReward(ctx, s.repo, updated, earned); err != nil {
		log.Printf("level=error component=service op=admin_complete msg=\"CRITICAL: reward credit failed after settlement\" transfer_id=%s user_id=%s points=%d err=%v",
			updated.ID, updated.UserID, earned, err)
	}

	s.audit(ctx, admin, auditActionComplete, transfer, updated, nil)
	s.notify(ctx, updated, "Transfer completed",
		fmt.Sprintf("%s %s has been sent to %s.", updated.TotalToAmount, updated.ToCurrency, updated.Recipient.AccountName), false)
	return updated, nil
}

// AdminRefund reverses a completed transfer. The record lands on the
// cancelled status with the refunded flag set; domain.Outcome disambiguates
// it from a plain cancellation.
func (s *Service) AdminRefund(ctx context.Context, admin Admin, transferID uuid.UUID, reason string) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: only completed transfers can be refunded", ErrInvalidStatusTransition)
	}

	now := time.Now().UTC()
	refunded := true
	cancelledBy := domain.CancelledByAdmin
	mutation := store.TransitionMutation{
		NewStatus:   domain.StatusCancelled,
		Refunded:    &refunded,
		CancelledBy: &cancelledBy,
		CancelledAt: &now,
		RefundedAt:  &now,
	}
	if strings.TrimSpace(reason) != "" {
		mutation.RefundReason = &reason
	}

	updated, err := s.repo.ApplyTransition(ctx, transferID, domain.StatusCompleted, mutation)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, admin, auditActionRefund, transfer, updated, &reason)
	s.notify(ctx, updated, "Transfer refunded", "Your completed transfer has been refunded.", false)
	return updated, nil
}

// Bulk transition actions accepted by BulkTransition.
const (
	BulkActionApprove  = "approve"
	BulkActionReject   = "reject"
	BulkActionCancel   = "cancel"
	BulkActionComplete = "complete"
)

// BulkTransition applies a single-record transition to each id independently.
// Partial failure of one record does not roll back the others; callers get a
// per-id outcome list.
func (s *Service) BulkTransition(ctx context.Context, admin Admin, transferIDs []uuid.UUID, action string, reason string) []domain.BulkTransitionResult {
	results := make([]domain.BulkTransitionResult, 0, len(transferIDs))
	for _, id := range transferIDs {
		var err error
		switch action {
		case BulkActionApprove:
			_, err = s.AdminApprove(ctx, admin, id, "")
		case BulkActionReject:
			_, err = s.AdminReject(ctx, admin, id, reason)
		case BulkActionCancel:
			_, err = s.AdminCancel(ctx, admin, id, reason)
		case BulkActionComplete:
			_, err = s.AdminComplete(ctx, admin, id, "")
		default:
			err = fmt.Errorf("unknown bulk action %q", action)
		}

		result := domain.BulkTransitionResult{TransferID: id, Success: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// AddNote appends an operator note to the transfer's trail. Notes remain
// writable after a transfer reaches a terminal status.
func (s *Service) AddNote(ctx context.Context, admin Admin, transferID uuid.UUID, text string) (*domain.Transfer, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyNoteText
	}

	updated, err := s.repo.AppendAdminNote(ctx, transferID, *s.newNote(admin, trimmed))
	if err != nil {
		return nil, err
	}

	s.audit(ctx, admin, auditActionNote, updated, updated, &trimmed)
	return updated, nil
}

// AdminAttachReceipt uploads a receipt into either slot of a non-terminal
// transfer. The destination-side receipt is the operator's proof that the
// recipient was paid.
func (s *Service) AdminAttachReceipt(ctx context.Context, admin Admin, transferID uuid.UUID, slot string, upload ReceiptUpload) (*domain.Transfer, error) {
	if slot != domain.ReceiptSlotFrom && slot != domain.ReceiptSlotTo {
		return nil, ErrInvalidReceiptSlot
	}

	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.IsTerminal() {
		return nil, ErrTerminalStatus
	}

	updated, err := s.storeReceipt(ctx, transfer, slot, upload)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, admin, auditActionReceiptAttach, transfer, updated, &slot)
	return updated, nil
}

// AdminDeleteReceipt removes the blob for one receipt slot and nulls out the
// stored metadata.
func (s *Service) AdminDeleteReceipt(ctx context.Context, admin Admin, transferID uuid.UUID, slot string) (*domain.Transfer, error) {
	if slot != domain.ReceiptSlotFrom && slot != domain.ReceiptSlotTo {
		return nil, ErrInvalidReceiptSlot
	}

	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.IsTerminal() {
		return nil, ErrTerminalStatus
	}

	receipt := transfer.FromReceipt
	if slot == domain.ReceiptSlotTo {
		receipt = transfer.ToReceipt
	}
	if receipt == nil {
		return transfer, nil
	}

	if err := s.blobs.Delete(ctx, receipt.URL); err != nil {
		return nil, fmt.Errorf("receipt blob delete failed: %w", err)
	}

	updated, err := s.repo.SetReceipt(ctx, transferID, slot, nil)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, admin, auditActionReceiptDelete, transfer, updated, &slot)
	return updated, nil
}

// ListTransfersAdmin returns one page of the admin transfer queue with
// arbitrary status filters, including exclusion (e.g., status != pending).
func (s *Service) ListTransfersAdmin(ctx context.Context, opts domain.TransferListOptions) (*domain.TransferPage, error) {
	return s.repo.ListTransfers(ctx, opts)
}

// AdminGetTransfer returns any transfer by id, regardless of owner.
func (s *Service) AdminGetTransfer(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	return s.repo.FindTransferByID(ctx, transferID)
}

func (s *Service) newNote(admin Admin, text string) *domain.AdminNote {
	return &domain.AdminNote{
		ActorID:    admin.ID,
		ActorEmail: admin.Email,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
}

func (s *Service) audit(ctx context.Context, admin Admin, action string, before, after *domain.Transfer, reason *string) {
	entry := &domain.AuditLogEntry{
		ID:             uuid.New(),
		AdminID:        admin.ID,
		AdminEmail:     admin.Email,
		Action:         action,
		TransferID:     after.ID,
		PreviousStatus: before.Status,
		NewStatus:      after.Status,
		Amount:         after.FromAmount,
		Currency:       after.FromCurrency,
		Reason:         reason,
	}
	if err := s.repo.InsertAuditEntry(ctx, entry); err != nil {
		log.Printf("level=error component=service msg=\"audit entry write failed\" action=%s transfer_id=%s admin_id=%s err=%v",
			action, after.ID, admin.ID, err)
	}
}
