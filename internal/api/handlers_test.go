package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adamsend/transfer-service/internal/app"
	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &domain.TransferCursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		ID:        uuid.New(),
	}

	token := encodeCursor(cursor)
	if token == "" {
		t.Fatal("expected a non-empty cursor token")
	}

	decoded := decodeCursor(token)
	if decoded == nil {
		t.Fatal("expected the token to decode")
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("expected %+v, got %+v", cursor, decoded)
	}
}

func TestDecodeCursor_ToleratesGarbage(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "not base64", token: "%%%"},
		{name: "base64 of non-json", token: "bm90LWpzb24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeCursor(tt.token); got != nil {
				t.Fatalf("expected nil cursor, got %+v", got)
			}
		})
	}
}

func TestWriteServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "missing transfer", err: store.ErrTransferNotFound, wantStatus: http.StatusNotFound},
		{name: "foreign transfer masquerades as missing", err: app.ErrNotTransferOwner, wantStatus: http.StatusNotFound},
		{name: "active transfer already exists", err: store.ErrActiveTransferExists, wantStatus: http.StatusConflict},
		{name: "lost transition race", err: store.ErrStatusConflict, wantStatus: http.StatusConflict},
		{name: "wrapped status conflict", err: fmt.Errorf("%w: expected %q, found %q", store.ErrStatusConflict, "pending", "failed"), wantStatus: http.StatusConflict},
		{name: "amount out of range", err: app.ErrAmountOutOfRange, wantStatus: http.StatusBadRequest},
		{name: "disallowed discount pair", err: app.ErrDiscountPairNotAllowed, wantStatus: http.StatusBadRequest},
		{name: "empty note text", err: app.ErrEmptyNoteText, wantStatus: http.StatusBadRequest},
		{name: "receipt required", err: app.ErrReceiptRequired, wantStatus: http.StatusPreconditionFailed},
		{name: "expired transfer", err: app.ErrTransferExpired, wantStatus: http.StatusPreconditionFailed},
		{name: "terminal status", err: app.ErrTerminalStatus, wantStatus: http.StatusPreconditionFailed},
		{name: "rate limited", err: app.ErrRateLimited, wantStatus: http.StatusTooManyRequests},
		{name: "rate catalog down", err: app.ErrRateUnavailable, wantStatus: http.StatusBadGateway},
		{name: "unknown error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	h := NewTransferHandlers(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, tt.err)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if contentType := rec.Header().Get("Content-Type"); contentType != "application/json" {
				t.Fatalf("expected a JSON error body, got %q", contentType)
			}
		})
	}
}
