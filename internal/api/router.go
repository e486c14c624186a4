/**
 * @description
 * This file sets up the HTTP router for the transfer service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TransferRoutes creates and returns a new router for the transfer service.
func TransferRoutes(h *TransferHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		// Apply JWT authentication middleware for production
		r.Use(AuthMiddleware(jwksURL))

		// Transfer lifecycle endpoints for the owning user.
		r.Post("/", h.CreateTransferHandler)
		r.Get("/", h.ListTransfersHandler)
		r.Get("/points/quote", h.PointsQuoteHandler)
		r.Get("/{transferID}", h.GetTransferHandler)
		r.Post("/{transferID}/receipt", h.AttachReceiptHandler)
		r.Post("/{transferID}/request-completion", h.RequestCompletionHandler)
		r.Delete("/{transferID}", h.UserCancelHandler)

		// Admin adjudication endpoints.
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/", h.AdminListTransfersHandler)
			r.Post("/bulk-status", h.AdminBulkTransitionHandler)
			r.Get("/{transferID}", h.AdminGetTransferHandler)
			r.Post("/{transferID}/approve", h.AdminApproveHandler)
			r.Post("/{transferID}/reject", h.AdminRejectHandler)
			r.Post("/{transferID}/cancel", h.AdminCancelHandler)
			r.Post("/{transferID}/complete", h.AdminCompleteHandler)
			r.Post("/{transferID}/refund", h.AdminRefundHandler)
			r.Post("/{transferID}/notes", h.AdminAddNoteHandler)
			r.Post("/{transferID}/receipt", h.AdminAttachReceiptHandler)
			r.Delete("/{transferID}/receipt", h.AdminDeleteReceiptHandler)
		})
	})

	return r
}
