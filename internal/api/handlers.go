/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's user-facing
 * API endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business logic
 * layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adamsend/transfer-service/internal/app"
	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

const maxReceiptUploadBytes = 10 << 20 // 10 MiB

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// authedUserID resolves the authenticated user's UUID from the request
// context, writing the error response itself on failure.
func (h *TransferHandlers) authedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_user_id user_id=%s", userIDStr)
		h.writeError(w, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *TransferHandlers) pathTransferID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	transferID, err := uuid.Parse(chi.URLParam(r, "transferID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID")
		return uuid.Nil, false
	}
	return transferID, true
}

// writeServiceError maps domain and store errors onto HTTP statuses.
func (h *TransferHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrTransferNotFound):
		h.writeError(w, http.StatusNotFound, "Transfer not found")
	case errors.Is(err, app.ErrNotTransferOwner):
		h.writeError(w, http.StatusNotFound, "Transfer not found")
	case errors.Is(err, store.ErrActiveTransferExists):
		h.writeError(w, http.StatusConflict, "You already have an active transfer")
	case errors.Is(err, store.ErrStatusConflict):
		h.writeError(w, http.StatusConflict, "Transfer was modified concurrently; refresh and retry")
	case errors.Is(err, app.ErrAmountOutOfRange),
		errors.Is(err, app.ErrMissingRecipientField),
		errors.Is(err, app.ErrInvalidReceiptSlot),
		errors.Is(err, app.ErrEmptyNoteText),
		errors.Is(err, app.ErrDiscountPairNotAllowed):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrReceiptRequired),
		errors.Is(err, app.ErrTransferExpired),
		errors.Is(err, app.ErrTerminalStatus),
		errors.Is(err, app.ErrInvalidStatusTransition):
		h.writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrRateUnavailable):
		h.writeError(w, http.StatusBadGateway, "Exchange rate is currently unavailable")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func encodeCursor(c *domain.TransferCursor) string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) *domain.TransferCursor {
	if token == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	var c domain.TransferCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil
	}
	return &c
}

type transferPageResponse struct {
	Transfers  []domain.Transfer `json:"transfers"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// CreateTransferHandler handles requests to create a new transfer.
func (h *TransferHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	var req domain.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.service.CreateTransfer(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_transfer outcome=failed user_id=%s err=%v", userID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_transfer outcome=created user_id=%s transfer_id=%s amount=%s %s",
		userID, transfer.ID, transfer.FromAmount, transfer.FromCurrency)
	h.writeJSON(w, http.StatusCreated, transfer)
}

// ListTransfersHandler returns one page of the user's transfer history.
func (h *TransferHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := h.service.ListTransfers(r.Context(), userID,
		r.URL.Query().Get("status"), limit, decodeCursor(r.URL.Query().Get("cursor")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transferPageResponse{
		Transfers:  page.Transfers,
		NextCursor: encodeCursor(page.NextCursor),
	})
}

// GetTransferHandler returns a single transfer owned by the caller.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), userID, transferID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

func receiptUploadFromRequest(r *http.Request) (app.ReceiptUpload, error) {
	if err := r.ParseMultipartForm(maxReceiptUploadBytes); err != nil {
		return app.ReceiptUpload{}, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return app.ReceiptUpload{}, err
	}
	return app.ReceiptUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, nil
}

// AttachReceiptHandler stores the user's proof of payment on a pending transfer.
func (h *TransferHandlers) AttachReceiptHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	upload, err := receiptUploadFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "A receipt file is required")
		return
	}

	transfer, err := h.service.AttachReceipt(r.Context(), userID, transferID, upload)
	if err != nil {
		log.Printf("level=warn component=api endpoint=attach_receipt outcome=failed transfer_id=%s err=%v", transferID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

// RequestCompletionHandler moves a funded pending transfer into processing.
func (h *TransferHandlers) RequestCompletionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	transfer, err := h.service.RequestCompletion(r.Context(), userID, transferID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=request_completion outcome=failed transfer_id=%s err=%v", transferID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=request_completion outcome=accepted transfer_id=%s", transferID)
	h.writeJSON(w, http.StatusOK, transfer)
}

// UserCancelHandler withdraws an unfunded pending transfer. The record is
// deleted outright.
func (h *TransferHandlers) UserCancelHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	if err := h.service.UserCancel(r.Context(), userID, transferID); err != nil {
		log.Printf("level=warn component=api endpoint=user_cancel outcome=failed transfer_id=%s err=%v", transferID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=user_cancel outcome=deleted transfer_id=%s user_id=%s", transferID, userID)
	w.WriteHeader(http.StatusNoContent)
}

// PointsQuoteHandler quotes the discount bonus available for the user's
// current balance against a given rate.
func (h *TransferHandlers) PointsQuoteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	rateID := r.URL.Query().Get("rate_id")
	if rateID == "" {
		h.writeError(w, http.StatusBadRequest, "rate_id is required")
		return
	}

	quote, err := h.service.QuoteDiscountForUser(r.Context(), userID, rateID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}
