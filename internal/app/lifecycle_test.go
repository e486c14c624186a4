package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

// lifecycleRepoStub is a minimal in-memory repository for exercising a full
// create → fund → review → settle pass.
type lifecycleRepoStub struct {
	store.Repository

	transfer *domain.Transfer
	balance  int64
}

func (s *lifecycleRepoStub) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	if s.transfer != nil && s.transfer.IsActive() && s.transfer.UserID == transfer.UserID {
		return store.ErrActiveTransferExists
	}
	copied := *transfer
	s.transfer = &copied
	return nil
}

func (s *lifecycleRepoStub) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	if s.transfer == nil || s.transfer.ID != transferID {
		return nil, store.ErrTransferNotFound
	}
	copied := *s.transfer
	return &copied, nil
}

func (s *lifecycleRepoStub) ApplyTransition(ctx context.Context, transferID uuid.UUID, expectedStatus string, mutation store.TransitionMutation) (*domain.Transfer, error) {
	if s.transfer == nil || s.transfer.ID != transferID {
		return nil, store.ErrTransferNotFound
	}
	if s.transfer.Status != expectedStatus {
		return nil, store.ErrStatusConflict
	}
	s.transfer.Status = mutation.NewStatus
	if mutation.CompletedAt != nil {
		s.transfer.CompletedAt = mutation.CompletedAt
	}
	copied := *s.transfer
	return &copied, nil
}

func (s *lifecycleRepoStub) SetReceipt(ctx context.Context, transferID uuid.UUID, slot string, receipt *domain.Receipt) (*domain.Transfer, error) {
	if s.transfer == nil || s.transfer.ID != transferID {
		return nil, store.ErrTransferNotFound
	}
	if slot == domain.ReceiptSlotFrom {
		s.transfer.FromReceipt = receipt
	} else {
		s.transfer.ToReceipt = receipt
	}
	copied := *s.transfer
	return &copied, nil
}

func (s *lifecycleRepoStub) GetPointsBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.balance, nil
}

func (s *lifecycleRepoStub) SetPointsBalance(ctx context.Context, userID uuid.UUID, points int64) error {
	s.balance = points
	return nil
}

func (s *lifecycleRepoStub) AddPointsBalance(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	s.balance += delta
	return s.balance, nil
}

func (s *lifecycleRepoStub) InsertAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error {
	return nil
}

func TestTransferLifecycle_CreateFundReviewSettle(t *testing.T) {
	repo := &lifecycleRepoStub{}
	rate := &domain.RateSnapshot{
		RateID:       "rate_usd_eur",
		FromCurrency: "USD",
		ToCurrency:   "EUR",
		Rate:         decimal.RequireFromString("1.5"),
		MinAmount:    decimal.NewFromInt(10),
		MaxAmount:    decimal.NewFromInt(10000),
	}
	blobs := &blobStoreStub{uploadURL: "https://blobs.example/receipts/wire.pdf"}
	points := NewPointsSettlement(&fxStub{}, "USD", nil)
	service := NewService(repo, &rateCatalogStub{rate: rate}, blobs, nil, points, 30)

	userID := uuid.New()
	ctx := context.Background()

	transfer, err := service.CreateTransfer(ctx, userID, domain.CreateTransferRequest{
		RateID:     "rate_usd_eur",
		FromAmount: decimal.NewFromInt(100),
		Recipient:  testRecipient(),
	})
	if err != nil {
		t.Fatalf("CreateTransfer returned error: %v", err)
	}
	if want := decimal.RequireFromString("150.00"); !transfer.ToAmount.Equal(want) {
		t.Fatalf("expected to_amount=150.00, got %s", transfer.ToAmount)
	}

	// A second creation while the first is active must be rejected.
	if _, err := service.CreateTransfer(ctx, userID, domain.CreateTransferRequest{
		RateID:     "rate_usd_eur",
		FromAmount: decimal.NewFromInt(50),
		Recipient:  testRecipient(),
	}); err != store.ErrActiveTransferExists {
		t.Fatalf("expected ErrActiveTransferExists for a second active transfer, got %v", err)
	}

	if _, err := service.AttachReceipt(ctx, userID, transfer.ID, testUpload()); err != nil {
		t.Fatalf("AttachReceipt returned error: %v", err)
	}

	inReview, err := service.RequestCompletion(ctx, userID, transfer.ID)
	if err != nil {
		t.Fatalf("RequestCompletion returned error: %v", err)
	}
	if inReview.Status != domain.StatusProcessing {
		t.Fatalf("expected processing, got %q", inReview.Status)
	}

	settled, err := service.AdminComplete(ctx, testAdmin(), transfer.ID, "payout confirmed")
	if err != nil {
		t.Fatalf("AdminComplete returned error: %v", err)
	}
	if settled.Status != domain.StatusCompleted || settled.CompletedAt == nil {
		t.Fatalf("expected a completed transfer with completed_at, got status=%q", settled.Status)
	}
	if settled.Outcome() != domain.OutcomeCompleted {
		t.Fatalf("expected outcome completed, got %q", settled.Outcome())
	}
	// 100 USD settled in the reference currency earns 100 whole points.
	if repo.balance != 100 {
		t.Fatalf("expected 100 points earned, got %d", repo.balance)
	}

	// Once settled, the user slot frees up for a new transfer.
	if _, err := service.CreateTransfer(ctx, userID, domain.CreateTransferRequest{
		RateID:     "rate_usd_eur",
		FromAmount: decimal.NewFromInt(50),
		Recipient:  testRecipient(),
	}); err != nil {
		t.Fatalf("expected a new transfer after settlement, got %v", err)
	}
}
