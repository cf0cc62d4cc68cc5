package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/logger"
)

// MaintenanceService houses cleanup and destructive ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Now          func() time.Time
}

// Cleanup removes pending rows older than the configured age. A pending row
// that never posts is left behind by the provider.
func (s *MaintenanceService) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	var out CleanupResult
	if opts.RemovePendingOlderThanDays <= 0 {
		return out, nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().UTC().AddDate(0, 0, -opts.RemovePendingOlderThanDays)
	n, err := s.Transactions.DeletePendingBefore(ctx, cutoff)
	if err != nil {
		return out, fmt.Errorf("remove stale pending: %w", err)
	}
	out.PendingRemoved = n
	log := logger.FromContext(ctx)
	log.Info().Int("removed", n).Time("cutoff", cutoff).Msg("stale pending transactions removed")
	return out, nil
}

// Stats reports table counts and categorization coverage.
func (s *MaintenanceService) Stats(ctx context.Context) (repository.StoreStats, error) {
	return s.Transactions.Stats(ctx)
}

// Reset wipes all synced and user data. It keeps the schema intact.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, t := range []string{"transactions", "accounts", "institutions"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
