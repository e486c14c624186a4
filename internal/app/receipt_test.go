package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

type blobStoreStub struct {
	uploadURL string
	uploadErr error

	uploadedPath string
	deletedURLs  []string
}

func (s *blobStoreStub) Upload(ctx context.Context, path string, contentType string, size int64, body io.Reader) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploadedPath = path
	return s.uploadURL, nil
}

func (s *blobStoreStub) Delete(ctx context.Context, url string) error {
	s.deletedURLs = append(s.deletedURLs, url)
	return nil
}

type receiptRepoStub struct {
	store.Repository

	transfer      *domain.Transfer
	setReceiptErr error

	setSlot    string
	setReceipt *domain.Receipt
}

func (s *receiptRepoStub) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	if s.transfer == nil {
		return nil, store.ErrTransferNotFound
	}
	copied := *s.transfer
	return &copied, nil
}

func (s *receiptRepoStub) SetReceipt(ctx context.Context, transferID uuid.UUID, slot string, receipt *domain.Receipt) (*domain.Transfer, error) {
	if s.setReceiptErr != nil {
		return nil, s.setReceiptErr
	}
	s.setSlot = slot
	s.setReceipt = receipt
	updated := *s.transfer
	if slot == domain.ReceiptSlotFrom {
		updated.FromReceipt = receipt
	} else {
		updated.ToReceipt = receipt
	}
	return &updated, nil
}

func (s *receiptRepoStub) InsertAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error {
	return nil
}

func testUpload() ReceiptUpload {
	return ReceiptUpload{
		Name:        "payment.png",
		ContentType: "image/png",
		Size:        2048,
		Body:        strings.NewReader("png-bytes"),
	}
}

func TestAttachReceipt_StoresFundingProof(t *testing.T) {
	userID := uuid.New()
	repo := &receiptRepoStub{transfer: pendingTransfer(userID)}
	blobs := &blobStoreStub{uploadURL: "https://blobs.example/receipts/payment.png"}
	service := NewService(repo, &rateCatalogStub{}, blobs, nil, NewPointsSettlement(&fxStub{}, "USD", nil), 30)

	updated, err := service.AttachReceipt(context.Background(), userID, repo.transfer.ID, testUpload())
	if err != nil {
		t.Fatalf("AttachReceipt returned error: %v", err)
	}
	if repo.setSlot != domain.ReceiptSlotFrom {
		t.Fatalf("expected the from slot, got %q", repo.setSlot)
	}
	if updated.FromReceipt == nil || updated.FromReceipt.URL != blobs.uploadURL {
		t.Fatalf("expected the receipt url recorded, got %+v", updated.FromReceipt)
	}
	if !strings.Contains(blobs.uploadedPath, repo.transfer.ID.String()) {
		t.Fatalf("expected the blob path scoped to the transfer, got %q", blobs.uploadedPath)
	}
}

func TestAttachReceipt_DeletesOrphanedBlobOnRecordFailure(t *testing.T) {
	userID := uuid.New()
	repo := &receiptRepoStub{
		transfer:      pendingTransfer(userID),
		setReceiptErr: errors.New("connection reset"),
	}
	blobs := &blobStoreStub{uploadURL: "https://blobs.example/receipts/payment.png"}
	service := NewService(repo, &rateCatalogStub{}, blobs, nil, NewPointsSettlement(&fxStub{}, "USD", nil), 30)

	_, err := service.AttachReceipt(context.Background(), userID, repo.transfer.ID, testUpload())
	if err == nil {
		t.Fatal("expected the record failure propagated")
	}
	if len(blobs.deletedURLs) != 1 || blobs.deletedURLs[0] != blobs.uploadURL {
		t.Fatalf("expected the orphaned blob deleted, got %v", blobs.deletedURLs)
	}
}

func TestAttachReceipt_RejectsNonPendingTransfer(t *testing.T) {
	userID := uuid.New()
	transfer := pendingTransfer(userID)
	transfer.Status = domain.StatusProcessing
	repo := &receiptRepoStub{transfer: transfer}
	service := NewService(repo, &rateCatalogStub{}, &blobStoreStub{}, nil, NewPointsSettlement(&fxStub{}, "USD", nil), 30)

	_, err := service.AttachReceipt(context.Background(), userID, transfer.ID, testUpload())
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestAdminAttachReceipt_RejectsUnknownSlot(t *testing.T) {
	repo := &receiptRepoStub{transfer: pendingTransfer(uuid.New())}
	service := NewService(repo, &rateCatalogStub{}, &blobStoreStub{}, nil, NewPointsSettlement(&fxStub{}, "USD", nil), 30)

	_, err := service.AdminAttachReceipt(context.Background(), testAdmin(), repo.transfer.ID, "middle", testUpload())
	if !errors.Is(err, ErrInvalidReceiptSlot) {
		t.Fatalf("expected ErrInvalidReceiptSlot, got %v", err)
	}
}

func TestAdminAttachReceipt_StoresPayoutProofInToSlot(t *testing.T) {
	transfer := pendingTransfer(uuid.New())
	transfer.Status = domain.StatusProcessing
	repo := &receiptRepoStub{transfer: transfer}
	blobs := &blobStoreStub{uploadURL: "https://blobs.example/receipts/payout.pdf"}
	service := NewService(repo, &rateCatalogStub{}, blobs, nil, NewPointsSettlement(&fxStub{}, "USD", nil), 30)

	updated, err := service.AdminAttachReceipt(context.Background(), testAdmin(), transfer.ID, domain.ReceiptSlotTo, testUpload())
	if err != nil {
		t.Fatalf("AdminAttachReceipt returned error: %v", err)
	}
	if repo.setSlot != domain.ReceiptSlotTo {
		t.Fatalf("expected the to slot, got %q", repo.setSlot)
	}
	if updated.ToReceipt == nil {
		t.Fatal("expected the payout receipt recorded")
	}
}
