package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncResult is returned by every sync operation; it is never persisted.
type SyncResult struct {
	RunID        string                       `json:"run_id"`
	Success      bool                         `json:"success"`
	NewCount     int                          `json:"new_transactions"`
	UpdatedCount int                          `json:"updated_transactions"`
	RemovedCount int                          `json:"removed_transactions"`
	Errors       []string                     `json:"errors"`
	Info         []string                     `json:"info,omitempty"`
	Institutions map[string]InstitutionResult `json:"institutions"`
	Timestamp    time.Time                    `json:"timestamp"`
}

// InstitutionResult is the per-institution slice of a SyncResult.
type InstitutionResult struct {
	Processed int    `json:"processed"`
	New       int    `json:"new"`
	Updated   int    `json:"updated"`
	Removed   int    `json:"removed"`
	Pages     int    `json:"pages"`
	Truncated bool   `json:"truncated,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newSyncResult(runID string, at time.Time) SyncResult {
	return SyncResult{
		RunID:        runID,
		Errors:       []string{},
		Institutions: map[string]InstitutionResult{},
		Timestamp:    at,
	}
}

// merge folds one institution's result into r.
func (r *SyncResult) merge(name string, other SyncResult) {
	r.NewCount += other.NewCount
	r.UpdatedCount += other.UpdatedCount
	r.RemovedCount += other.RemovedCount
	r.Errors = append(r.Errors, other.Errors...)
	r.Info = append(r.Info, other.Info...)
	if ir, ok := other.Institutions[name]; ok {
		r.Institutions[name] = ir
	}
}

// LinkResult reports the outcome of linking an institution.
type LinkResult struct {
	Success         bool   `json:"success"`
	InstitutionName string `json:"institution_name"`
	AccountCount    int    `json:"account_count"`
	Error           string `json:"error,omitempty"`
}

// CategorizationResult reports one categorization attempt. RawOutput is kept
// when the model reply was rejected.
type CategorizationResult struct {
	TransactionID string `json:"transaction_id"`
	Success       bool   `json:"success"`
	Category      string `json:"category,omitempty"`
	Reasoning     string `json:"reasoning,omitempty"`
	Error         string `json:"error,omitempty"`
	RawOutput     string `json:"raw_output,omitempty"`
}

// BulkResult aggregates a bulk categorization run.
type BulkResult struct {
	SuccessCount int                    `json:"success_count"`
	FailCount    int                    `json:"fail_count"`
	Errors       []string               `json:"errors"`
	Results      []CategorizationResult `json:"results"`
}

// SummaryStats aggregates a set of transactions. Spending sums positive
// amounts, income the magnitude of negative ones.
type SummaryStats struct {
	Count      int                        `json:"count"`
	Spending   decimal.Decimal            `json:"spending"`
	Income     decimal.Decimal            `json:"income"`
	NetFlow    decimal.Decimal            `json:"net_flow"`
	Pending    int                        `json:"pending"`
	Categories map[string]CategoryTotal   `json:"categories"`
	Monthly    map[string]decimal.Decimal `json:"monthly_spending"`
	First      *time.Time                 `json:"first,omitempty"`
	Last       *time.Time                 `json:"last,omitempty"`
}

// CategoryTotal is the signed total and count for one effective category.
type CategoryTotal struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// CleanupOptions selects what Cleanup removes.
type CleanupOptions struct {
	RemovePendingOlderThanDays int
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	PendingRemoved int `json:"pending_removed"`
}
