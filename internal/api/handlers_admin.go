/**
 * @description
 * HTTP handlers for the admin adjudication endpoints: the operator-initiated
 * transitions, bulk status changes, the note trail, receipt management, and
 * the filtered transfer queue.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/adamsend/transfer-service/internal/app"
	"github.com/adamsend/transfer-service/internal/domain"
)

func (h *TransferHandlers) adminActor(w http.ResponseWriter, r *http.Request) (app.Admin, bool) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return app.Admin{}, false
	}
	email, _ := GetUserEmail(r.Context())
	return app.Admin{ID: userID, Email: email}, true
}

type adminActionRequest struct {
	Reason string `json:"reason,omitempty"`
	Note   string `json:"note,omitempty"`
}

func decodeActionBody(r *http.Request) adminActionRequest {
	var body adminActionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	return body
}

// AdminListTransfersHandler returns one page of the admin transfer queue.
// Supports status, exclude_status, and user_id filters.
func (h *TransferHandlers) AdminListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := domain.TransferListOptions{
		Status:        query.Get("status"),
		ExcludeStatus: query.Get("exclude_status"),
		Cursor:        decodeCursor(query.Get("cursor")),
	}
	opts.Limit, _ = strconv.Atoi(query.Get("limit"))
	if rawUserID := query.Get("user_id"); rawUserID != "" {
		userID, err := uuid.Parse(rawUserID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid user_id filter")
			return
		}
		opts.UserID = &userID
	}

	page, err := h.service.ListTransfersAdmin(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transferPageResponse{
		Transfers:  page.Transfers,
		NextCursor: encodeCursor(page.NextCursor),
	})
}

// AdminGetTransferHandler returns any transfer by id, without the ownership
// restriction of the user endpoint.
func (h *TransferHandlers) AdminGetTransferHandler(w http.ResponseWriter, r *http.Request) {
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	transfer, err := h.service.AdminGetTransfer(r.Context(), transferID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

func (h *TransferHandlers) runAdminTransition(
	w http.ResponseWriter,
	r *http.Request,
	endpoint string,
	fn func(admin app.Admin, transferID uuid.UUID, body adminActionRequest) (*domain.Transfer, error),
) {
	admin, ok := h.adminActor(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	body := decodeActionBody(r)
	transfer, err := fn(admin, transferID, body)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=failed transfer_id=%s admin_id=%s err=%v",
			endpoint, transferID, admin.ID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=%s outcome=applied transfer_id=%s admin_id=%s status=%s",
		endpoint, transferID, admin.ID, transfer.Status)
	h.writeJSON(w, http.StatusOK, transfer)
}

// AdminApproveHandler moves a pending transfer into review.
func (h *TransferHandlers) AdminApproveHandler(w http.ResponseWriter, r *http.Request) {
	h.runAdminTransition(w, r, "admin_approve", func(admin app.Admin, id uuid.UUID, body adminActionRequest) (*domain.Transfer, error) {
		return h.service.AdminApprove(r.Context(), admin, id, body.Note)
	})
}

// AdminRejectHandler fails a transfer with a reason.
func (h *TransferHandlers) AdminRejectHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminActor(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	body := decodeActionBody(r)
	if body.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "A rejection reason is required")
		return
	}

	transfer, err := h.service.AdminReject(r.Context(), admin, transferID, body.Reason)
	if err != nil {
		log.Printf("level=warn component=api endpoint=admin_reject outcome=failed transfer_id=%s admin_id=%s err=%v",
			transferID, admin.ID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

// AdminCancelHandler cancels a transfer, retaining the record.
func (h *TransferHandlers) AdminCancelHandler(w http.ResponseWriter, r *http.Request) {
	h.runAdminTransition(w, r, "admin_cancel", func(admin app.Admin, id uuid.UUID, body adminActionRequest) (*domain.Transfer, error) {
		return h.service.AdminCancel(r.Context(), admin, id, body.Reason)
	})
}

// AdminCompleteHandler settles a processing transfer.
func (h *TransferHandlers) AdminCompleteHandler(w http.ResponseWriter, r *http.Request) {
	h.runAdminTransition(w, r, "admin_complete", func(admin app.Admin, id uuid.UUID, body adminActionRequest) (*domain.Transfer, error) {
		return h.service.AdminComplete(r.Context(), admin, id, body.Note)
	})
}

// AdminRefundHandler reverses a completed transfer.
func (h *TransferHandlers) AdminRefundHandler(w http.ResponseWriter, r *http.Request) {
	h.runAdminTransition(w, r, "admin_refund", func(admin app.Admin, id uuid.UUID, body adminActionRequest) (*domain.Transfer, error) {
		return h.service.AdminRefund(r.Context(), admin, id, body.Reason)
	})
}

// AdminAddNoteHandler appends one operator note.
func (h *TransferHandlers) AdminAddNoteHandler(w http.ResponseWriter, r *http.Request) {
	h.runAdminTransition(w, r, "admin_add_note", func(admin app.Admin, id uuid.UUID, body adminActionRequest) (*domain.Transfer, error) {
		return h.service.AddNote(r.Context(), admin, id, body.Note)
	})
}

// AdminAttachReceiptHandler uploads a receipt into either slot. The slot is
// selected with the `slot` query parameter (from|to, defaulting to to).
func (h *TransferHandlers) AdminAttachReceiptHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminActor(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	slot := r.URL.Query().Get("slot")
	if slot == "" {
		slot = domain.ReceiptSlotTo
	}

	upload, err := receiptUploadFromRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "A receipt file is required")
		return
	}

	transfer, err := h.service.AdminAttachReceipt(r.Context(), admin, transferID, slot, upload)
	if err != nil {
		log.Printf("level=warn component=api endpoint=admin_attach_receipt outcome=failed transfer_id=%s err=%v", transferID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

// AdminDeleteReceiptHandler removes a receipt from either slot.
func (h *TransferHandlers) AdminDeleteReceiptHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminActor(w, r)
	if !ok {
		return
	}
	transferID, ok := h.pathTransferID(w, r)
	if !ok {
		return
	}

	slot := r.URL.Query().Get("slot")
	if slot == "" {
		slot = domain.ReceiptSlotTo
	}

	transfer, err := h.service.AdminDeleteReceipt(r.Context(), admin, transferID, slot)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

type bulkTransitionRequest struct {
	TransferIDs []uuid.UUID `json:"transfer_ids"`
	Action      string      `json:"action"`
	Reason      string      `json:"reason,omitempty"`
}

type bulkTransitionResponse struct {
	Results      []domain.BulkTransitionResult `json:"results"`
	SuccessCount int                           `json:"success_count"`
	FailureCount int                           `json:"failure_count"`
}

// AdminBulkTransitionHandler applies a transition to each id independently
// and reports the per-id outcomes.
func (h *TransferHandlers) AdminBulkTransitionHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminActor(w, r)
	if !ok {
		return
	}

	var req bulkTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.TransferIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "transfer_ids is required")
		return
	}

	results := h.service.BulkTransition(r.Context(), admin, req.TransferIDs, req.Action, req.Reason)

	response := bulkTransitionResponse{Results: results}
	for _, result := range results {
		if result.Success {
			response.SuccessCount++
		} else {
			response.FailureCount++
		}
	}

	log.Printf("level=info component=api endpoint=admin_bulk_transition action=%s requested=%d success=%d failed=%d admin_id=%s",
		req.Action, len(req.TransferIDs), response.SuccessCount, response.FailureCount, admin.ID)
	h.writeJSON(w, http.StatusOK, response)
}
