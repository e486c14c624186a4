/**
 * @description
 * This file contains the core business logic for the transfer-service. The `Service`
 * struct orchestrates the transfer lifecycle, coordinating between the database
 * repository, the rate catalog, the blob store, and the message broker.
 *
 * Key features:
 * - Implements transfer creation with rate/amount freezing and the loyalty
 *   points discount.
 * - Drives the user-side transitions: funding receipt upload, completion
 *   request, and hard-delete cancellation of an unfunded pending transfer.
 * - Publishes status events to RabbitMQ for asynchronous delivery by the
 *   notification service; publish failures never fail a committed transition.
 *
 * @dependencies
 * - context, errors, fmt, io, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: For money arithmetic.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
	"github.com/adamsend/transfer-service/pkg/rabbitmq"
)

var (
	ErrAmountOutOfRange        = errors.New("amount is outside the allowed range for this rate")
	ErrMissingRecipientField   = errors.New("required recipient field is missing")
	ErrEmptyNoteText           = errors.New("note text must not be empty")
	ErrReceiptRequired         = errors.New("a payment receipt must be attached first")
	ErrTransferExpired         = errors.New("transfer has expired")
	ErrNotTransferOwner        = errors.New("transfer does not belong to this user")
	ErrTerminalStatus          = errors.New("transfer has already reached a final status")
	ErrInvalidReceiptSlot      = errors.New("invalid receipt slot")
	ErrRateUnavailable         = errors.New("exchange rate is unavailable")
	ErrRateLimited             = errors.New("too many transfer attempts; slow down")
	ErrInvalidStatusTransition = errors.New("transfer is not in the required status for this operation")
)

const (
	eventsExchange = "adamsend.events"

	auditActionApprove       = "transfer.approve"
	auditActionReject        = "transfer.reject"
	auditActionCancel        = "transfer.cancel"
	auditActionComplete      = "transfer.complete"
	auditActionRefund        = "transfer.refund"
	auditActionNote          = "transfer.note"
	auditActionReceiptAttach = "transfer.receipt.attach"
	auditActionReceiptDelete = "transfer.receipt.delete"
)

// RateCatalog supplies rate snapshots quoted by an external catalog. Rates
// are consumed here, never managed.
type RateCatalog interface {
	GetRate(ctx context.Context, rateID string) (*domain.RateSnapshot, error)
}

// BlobStore stores receipt files. Upload is context-cancellable so an
// abandoned upload does not leave an orphaned blob on our side.
type BlobStore interface {
	Upload(ctx context.Context, path string, contentType string, size int64, body io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// RateLimiter bounds how often a subject may hit a guarded operation.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for transfers.
type Service struct {
	repo          store.Repository
	rates         RateCatalog
	blobs         BlobStore
	eventProducer rabbitmq.Publisher
	points        *PointsSettlement

	expiryMinutes   int
	rateLimiter     RateLimiter
	createRateLimit int
}

// NewService creates a new transfer service instance.
func NewService(repo store.Repository, rates RateCatalog, blobs BlobStore, producer rabbitmq.Publisher, points *PointsSettlement, expiryMinutes int) *Service {
	if expiryMinutes <= 0 {
		expiryMinutes = 30
	}
	return &Service{
		repo:          repo,
		rates:         rates,
		blobs:         blobs,
		eventProducer: producer,
		points:        points,
		expiryMinutes: expiryMinutes,
	}
}

// SetCreateRateLimiter enables per-user rate limiting on transfer creation.
func (s *Service) SetCreateRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.createRateLimit = perMinute
}

// Points exposes the settlement component for quote endpoints.
func (s *Service) Points() *PointsSettlement {
	return s.points
}

func validateRecipient(r domain.RecipientDetails) error {
	required := map[string]string{
		"full_name":      r.FullName,
		"bank_name":      r.BankName,
		"account_number": r.AccountNumber,
		"account_name":   r.AccountName,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingRecipientField, field)
		}
	}
	return nil
}

// CreateTransfer quotes, freezes, and persists a new pending transfer.
//
// The rate snapshot is fetched by id and copied onto the record; the
// converted amount is rounded to two decimal places exactly once, here. When
// the caller spends loyalty points the discount is a credited bonus on the
// destination side: the user still owes the full source amount, and the
// recipient is credited the converted amount plus the bonus.
func (s *Service) CreateTransfer(ctx context.Context, userID uuid.UUID, req domain.CreateTransferRequest) (*domain.Transfer, error) {
	if s.rateLimiter != nil && s.createRateLimit > 0 {
		count, _, err := s.rateLimiter.ConsumeRateLimit(ctx, "transfer_create", userID.String(), s.createRateLimit, time.Minute)
		if err != nil {
			log.Printf("level=warn component=service op=create_transfer msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > s.createRateLimit {
			return nil, ErrRateLimited
		}
	}

	if err := validateRecipient(req.Recipient); err != nil {
		return nil, err
	}
	if req.FromAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrAmountOutOfRange)
	}

	rate, err := s.rates.GetRate(ctx, req.RateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	if req.FromAmount.LessThan(rate.MinAmount) || req.FromAmount.GreaterThan(rate.MaxAmount) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s] %s",
			ErrAmountOutOfRange, req.FromAmount, rate.MinAmount, rate.MaxAmount, rate.FromCurrency)
	}

	toAmount := req.FromAmount.Mul(rate.Rate).Round(2)

	discount := decimal.Zero
	var pointsSpent int64
	if req.UsePoints {
		balance, err := s.repo.GetPointsBalance(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read points balance: %w", err)
		}
		if balance > 0 {
			discount, err = s.points.QuoteDiscount(ctx, balance, rate.FromCurrency, rate.ToCurrency)
			if err != nil {
				return nil, err
			}
			pointsSpent = balance
		}
	}

	now := time.Now().UTC()
	transfer := &domain.Transfer{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          domain.StatusPending,
		FromAmount:      req.FromAmount,
		FromCurrency:    rate.FromCurrency,
		ToAmount:        toAmount,
		ToCurrency:      rate.ToCurrency,
		ExchangeRate:    rate.Rate,
		RateID:          rate.RateID,
		DiscountAmount:  discount,
		PointsSpent:     pointsSpent,
		TotalFromAmount: req.FromAmount,
		TotalToAmount:   toAmount.Add(discount),
		Recipient:       req.Recipient,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(s.expiryMinutes) * time.Minute),
	}

	// Debit the spent points before persisting; restore them if persistence
	// fails so a rejected create never burns the balance.
	if pointsSpent > 0 {
		if err := s.repo.SetPointsBalance(ctx, userID, 0); err != nil {
			return nil, fmt.Errorf("failed to debit points balance: %w", err)
		}
	}

	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		if pointsSpent > 0 {
			if restoreErr := s.repo.SetPointsBalance(ctx, userID, pointsSpent); restoreErr != nil {
				log.Printf("level=error component=service op=create_transfer msg=\"CRITICAL: failed to restore points after create failure\" user_id=%s points=%d err=%v",
					userID, pointsSpent, restoreErr)
			}
		}
		return nil, err
	}

	s.notify(ctx, transfer, "Transfer created",
		fmt.Sprintf("Your transfer of %s %s is awaiting payment.", transfer.FromAmount, transfer.FromCurrency), false)

	return transfer, nil
}

// DiscountQuote is the response to a points discount quote.
type DiscountQuote struct {
	PointsBalance int64           `json:"points_balance"`
	BonusAmount   decimal.Decimal `json:"bonus_amount"`
	Currency      string          `json:"currency"`
}

// QuoteDiscountForUser quotes the bonus the user's current balance would add
// to a transfer priced by the given rate.
func (s *Service) QuoteDiscountForUser(ctx context.Context, userID uuid.UUID, rateID string) (*DiscountQuote, error) {
	rate, err := s.rates.GetRate(ctx, rateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	balance, err := s.repo.GetPointsBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read points balance: %w", err)
	}
	bonus, err := s.points.QuoteDiscount(ctx, balance, rate.FromCurrency, rate.ToCurrency)
	if err != nil {
		return nil, err
	}
	return &DiscountQuote{
		PointsBalance: balance,
		BonusAmount:   bonus,
		Currency:      rate.ToCurrency,
	}, nil
}

// GetTransfer returns a single transfer, restricted to its owner.
func (s *Service) GetTransfer(ctx context.Context, userID uuid.UUID, transferID uuid.UUID) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.UserID != userID {
		return nil, ErrNotTransferOwner
	}
	return transfer, nil
}

// ListTransfers returns one page of the user's transfer history.
func (s *Service) ListTransfers(ctx context.Context, userID uuid.UUID, status string, limit int, cursor *domain.TransferCursor) (*domain.TransferPage, error) {
	return s.repo.ListTransfers(ctx, domain.TransferListOptions{
		UserID: &userID,
		Status: status,
		Limit:  limit,
		Cursor: cursor,
	})
}

// ReceiptUpload carries an incoming receipt file.
type ReceiptUpload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachReceipt uploads the user's proof of payment and stores its metadata
// in the from_receipt slot. Only the owner may attach, and only while the
// transfer is still pending.
func (s *Service) AttachReceipt(ctx context.Context, userID uuid.UUID, transferID uuid.UUID, upload ReceiptUpload) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.UserID != userID {
		return nil, ErrNotTransferOwner
	}
	if transfer.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: receipts can only be attached while pending", ErrInvalidStatusTransition)
	}

	return s.storeReceipt(ctx, transfer, domain.ReceiptSlotFrom, upload)
}

func (s *Service) storeReceipt(ctx context.Context, transfer *domain.Transfer, slot string, upload ReceiptUpload) (*domain.Transfer, error) {
	path := fmt.Sprintf("receipts/%s/%s/%s", transfer.ID, slot, upload.Name)
	url, err := s.blobs.Upload(ctx, path, upload.ContentType, upload.Size, upload.Body)
	if err != nil {
		return nil, fmt.Errorf("receipt upload failed: %w", err)
	}

	receipt := &domain.Receipt{
		Name:       upload.Name,
		Type:       upload.ContentType,
		Size:       upload.Size,
		URL:        url,
		UploadedAt: time.Now().UTC(),
	}

	updated, err := s.repo.SetReceipt(ctx, transfer.ID, slot, receipt)
	if err != nil {
		// Remove the uploaded blob so a failed record update leaves no orphan.
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), url); delErr != nil {
			log.Printf("level=error component=service op=attach_receipt msg=\"failed to delete orphaned receipt blob\" url=%s err=%v", url, delErr)
		}
		return nil, err
	}
	return updated, nil
}

// RequestCompletion moves a funded pending transfer into processing. It is
// the user's claim that payment has been made: the funding receipt must be
// attached and the transfer must not have expired.
func (s *Service) RequestCompletion(ctx context.Context, userID uuid.UUID, transferID uuid.UUID) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.UserID != userID {
		return nil, ErrNotTransferOwner
	}
	if transfer.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: expected pending, found %s", ErrInvalidStatusTransition, transfer.Status)
	}
	if transfer.FromReceipt == nil {
		return nil, ErrReceiptRequired
	}
	if IsExpired(transfer, time.Now().UTC()) {
		return nil, ErrTransferExpired
	}

	updated, err := s.repo.ApplyTransition(ctx, transferID, domain.StatusPending, store.TransitionMutation{
		NewStatus: domain.StatusProcessing,
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, "Transfer in review",
		"Your payment has been received and is being reviewed.", true)

	return updated, nil
}

// UserCancel withdraws an unfunded, unreviewed obligation. The record is
// hard-deleted, not transitioned: a user withdrawal leaves no trace. Points
// spent on the discount are restored first so the balance is not burnt.
func (s *Service) UserCancel(ctx context.Context, userID uuid.UUID, transferID uuid.UUID) error {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer.UserID != userID {
		return ErrNotTransferOwner
	}
	if transfer.Status != domain.StatusPending {
		return fmt.Errorf("%w: only pending transfers can be withdrawn", ErrInvalidStatusTransition)
	}

	if err := s.repo.DeleteTransfer(ctx, transferID, userID, domain.StatusPending); err != nil {
		return err
	}

	s.restoreSpentPoints(ctx, "user_cancel", transfer)

	return nil
}

// restoreSpentPoints returns a discount's points to the user after a transfer
// ends without settling. The status change has already committed, so a
// balance write failure is logged rather than propagated.
func (s *Service) restoreSpentPoints(ctx context.Context, op string, transfer *domain.Transfer) {
	if transfer.PointsSpent == 0 {
		return
	}
	if _, err := s.repo.AddPointsBalance(ctx, transfer.UserID, transfer.PointsSpent); err != nil {
		log.Printf("level=error component=service op=%s msg=\"CRITICAL: failed to restore points\" transfer_id=%s user_id=%s points=%d err=%v",
			op, transfer.ID, transfer.UserID, transfer.PointsSpent, err)
	}
}

// notify publishes a status event for asynchronous delivery. Delivery is
// best-effort: the financial state change has already committed, so a broker
// failure is logged and swallowed.
func (s *Service) notify(ctx context.Context, transfer *domain.Transfer, title, body string, notifyAdmins bool) {
	if s.eventProducer == nil {
		return
	}
	event := domain.TransferStatusEvent{
		TransferID:   transfer.ID,
		UserID:       transfer.UserID,
		Status:       transfer.Status,
		Title:        title,
		Body:         body,
		NotifyAdmins: notifyAdmins,
		Timestamp:    time.Now().UTC(),
	}
	routingKey := "transfer.status." + transfer.Status
	if err := s.eventProducer.Publish(ctx, eventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"status event publish failed\" transfer_id=%s routing_key=%s err=%v",
			transfer.ID, routingKey, err)
	}
}
