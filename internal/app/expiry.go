/**
 * @description
 * Expiry handling for pending transfers. The guard is a read-time check used
 * to block completion requests on stale quotes; the sweeper is the active
 * reconciliation job that force-fails expired, unfunded pending transfers so
 * they do not sit in storage forever.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adamsend/transfer-service/internal/domain"
	"github.com/adamsend/transfer-service/internal/store"
)

const expiredReason = "expired"

// IsExpired reports whether a pending transfer's quote window has lapsed.
// Expiry is meaningful only while pending; once a transfer is funded and in
// review the window no longer applies.
func IsExpired(transfer *domain.Transfer, now time.Time) bool {
	return transfer.Status == domain.StatusPending && now.After(transfer.ExpiresAt)
}

// ExpirySweeper periodically fails expired, unfunded pending transfers.
type ExpirySweeper struct {
	cron      *cron.Cron
	service   *Service
	logger    *slog.Logger
	schedule  string
	batchSize int
}

// NewExpirySweeper creates the sweeper with a cron schedule expression.
func NewExpirySweeper(service *Service, logger *slog.Logger, schedule string, batchSize int) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &ExpirySweeper{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger))),
		service:   service,
		logger:    logger,
		schedule:  schedule,
		batchSize: batchSize,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *ExpirySweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return err
	}
	s.logger.Info("scheduled transfer expiry sweep", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop gracefully stops the scheduler and returns a context that is done
// once any running sweep has finished.
func (s *ExpirySweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep runs one reconciliation pass. Each expired transfer is failed with a
// CAS from pending, so a transfer funded between the read and the write is
// left alone.
func (s *ExpirySweeper) Sweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	expired, err := s.service.repo.FindExpiredPendingTransfers(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list expired transfers", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	s.logger.Info("found expired pending transfers", "count", len(expired))

	failed := 0
	for _, transfer := range expired {
		reason := expiredReason
		_, err := s.service.repo.ApplyTransition(ctx, transfer.ID, domain.StatusPending, store.TransitionMutation{
			NewStatus:       domain.StatusFailed,
			RejectionReason: &reason,
		})
		if err != nil {
			// A lost CAS means the transfer moved on between read and write.
			s.logger.Warn("skipping transfer during expiry sweep", "transfer_id", transfer.ID, "error", err)
			continue
		}
		failed++

		if transfer.PointsSpent > 0 {
			if _, err := s.service.repo.AddPointsBalance(ctx, transfer.UserID, transfer.PointsSpent); err != nil {
				s.logger.Error("failed to restore points for expired transfer",
					"transfer_id", transfer.ID, "user_id", transfer.UserID, "points", transfer.PointsSpent, "error", err)
			}
		}

		s.service.notify(ctx, &domain.Transfer{
			ID:     transfer.ID,
			UserID: transfer.UserID,
			Status: domain.StatusFailed,
		}, "Transfer expired", "Your transfer expired before payment was received.", false)
	}

	s.logger.Info("expiry sweep finished", "expired", len(expired), "failed", failed)
}
