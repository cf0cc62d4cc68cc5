package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/logger"
)

// DateRange bounds a query; nil ends are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// TransactionService exposes categorization and read operations over the store.
type TransactionService struct {
	Transactions       *repository.TransactionRepo
	Categorizer        *Categorizer
	Taxonomy           *category.Taxonomy
	TransferWindowDays int
}

func (s *TransactionService) taxonomy() *category.Taxonomy {
	if s.Taxonomy != nil {
		return s.Taxonomy
	}
	return category.Default()
}

// CategorizeTransaction asks the model for id's category and stores it as the AI category.
func (s *TransactionService) CategorizeTransaction(ctx context.Context, id string) CategorizationResult {
	t, err := s.Transactions.ReadByID(ctx, id)
	if err != nil {
		res := CategorizationResult{TransactionID: id}
		if errors.Is(err, repository.ErrNotFound) {
			res.Error = fmt.Sprintf("transaction %s not found", id)
		} else {
			res.Error = err.Error()
		}
		return res
	}
	return s.categorize(ctx, t)
}

func (s *TransactionService) categorize(ctx context.Context, t repository.Transaction) CategorizationResult {
	res := CategorizationResult{TransactionID: t.ID}
	log := logger.FromContext(ctx).With().Str("transaction_id", t.ID).Logger()
	if s.Categorizer == nil {
		res.Error = "no categorizer configured"
		return res
	}

	candidates, err := s.FindTransfers(ctx, t)
	if err != nil {
		log.Warn().Err(err).Msg("transfer lookup failed, categorizing without candidates")
		candidates = nil
	}

	out, err := s.Categorizer.Categorize(ctx, t, candidates)
	if err != nil {
		res.Error = err.Error()
		var pe *ParseError
		var ve *ValidationError
		switch {
		case errors.As(err, &pe):
			res.RawOutput = pe.Raw
		case errors.As(err, &ve):
			res.RawOutput = ve.Raw
		}
		return res
	}

	if err := s.Transactions.UpdateByID(ctx, t.ID, repository.TransactionUpdate{
		AICategory: &out.Category,
		AIReason:   &out.Reasoning,
	}); err != nil {
		res.Error = err.Error()
		return res
	}
	log.Debug().Str("category", out.Category).Msg("transaction categorized")
	res.Success = true
	res.Category = out.Category
	res.Reasoning = out.Reasoning
	return res
}

// BulkCategorize categorizes every row lacking an AI category, or every row when force is set.
// Individual failures are collected and never stop the run.
func (s *TransactionService) BulkCategorize(ctx context.Context, force bool) BulkResult {
	var rows []repository.Transaction
	var err error
	if force {
		rows, err = s.Transactions.ReadAll(ctx)
	} else {
		rows, err = s.Transactions.ReadUncategorized(ctx, 0)
	}
	if err != nil {
		return BulkResult{Errors: []string{fmt.Sprintf("load transactions: %v", err)}}
	}
	return s.categorizeRows(ctx, rows)
}

// CategorizeIDs categorizes the given rows; unknown ids count as failures.
func (s *TransactionService) CategorizeIDs(ctx context.Context, ids []string) BulkResult {
	out := BulkResult{Errors: []string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			out.Errors = append(out.Errors, err.Error())
			break
		}
		out.add(s.CategorizeTransaction(ctx, id))
	}
	return out
}

func (s *TransactionService) categorizeRows(ctx context.Context, rows []repository.Transaction) BulkResult {
	out := BulkResult{Errors: []string{}}
	for _, t := range rows {
		if err := ctx.Err(); err != nil {
			out.Errors = append(out.Errors, err.Error())
			break
		}
		out.add(s.categorize(ctx, t))
	}
	log := logger.FromContext(ctx)
	log.Info().
		Int("succeeded", out.SuccessCount).
		Int("failed", out.FailCount).
		Msg("bulk categorization finished")
	return out
}

func (b *BulkResult) add(r CategorizationResult) {
	b.Results = append(b.Results, r)
	if r.Success {
		b.SuccessCount++
		return
	}
	b.FailCount++
	b.Errors = append(b.Errors, fmt.Sprintf("%s: %s", r.TransactionID, r.Error))
}

// FindTransfers returns opposite-signed counterparts of t in other accounts.
func (s *TransactionService) FindTransfers(ctx context.Context, t repository.Transaction) ([]repository.Transaction, error) {
	window := s.TransferWindowDays
	if window <= 0 {
		window = 3
	}
	return s.Transactions.FindPotentialTransfers(ctx, repository.TransferQuery{
		ExcludeID:        t.ID,
		ExcludeAccountID: t.AccountID,
		Amount:           t.Amount,
		Date:             t.Date,
		WindowDays:       window,
	})
}

// FindDuplicates returns rows that look like the same purchase as id.
func (s *TransactionService) FindDuplicates(ctx context.Context, id string) ([]repository.Transaction, error) {
	t, err := s.Transactions.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Transactions.FindDuplicates(ctx, t)
}

// GetTransactions returns rows matching f, newest first.
func (s *TransactionService) GetTransactions(ctx context.Context, f repository.TransactionFilters) ([]repository.Transaction, error) {
	return s.Transactions.ReadWithFilters(ctx, f)
}

// GetSummaryStats aggregates the rows inside r.
func (s *TransactionService) GetSummaryStats(ctx context.Context, r DateRange) (SummaryStats, error) {
	rows, err := s.Transactions.ReadWithFilters(ctx, repository.TransactionFilters{DateStart: r.Start, DateEnd: r.End})
	if err != nil {
		return SummaryStats{}, err
	}
	return Summarize(rows), nil
}

// Summarize computes totals with decimal arithmetic so sums of cents stay exact.
func Summarize(rows []repository.Transaction) SummaryStats {
	st := SummaryStats{
		Spending:   decimal.Zero,
		Income:     decimal.Zero,
		NetFlow:    decimal.Zero,
		Categories: map[string]CategoryTotal{},
		Monthly:    map[string]decimal.Decimal{},
	}
	for _, t := range rows {
		amt := decimal.NewFromFloat(t.Amount).Round(2)
		st.Count++
		if t.Pending {
			st.Pending++
		}
		if amt.IsPositive() {
			st.Spending = st.Spending.Add(amt)
			month := t.Date.Format("2006-01")
			st.Monthly[month] = st.Monthly[month].Add(amt)
		} else {
			st.Income = st.Income.Add(amt.Neg())
		}

		cat := t.EffectiveCategory()
		ct := st.Categories[cat]
		ct.Count++
		ct.Total = ct.Total.Add(amt)
		st.Categories[cat] = ct

		d := t.Date
		if st.First == nil || d.Before(*st.First) {
			st.First = &d
		}
		if st.Last == nil || d.After(*st.Last) {
			st.Last = &d
		}
	}
	st.NetFlow = st.Income.Sub(st.Spending)
	return st
}

// SetManualCategory overrides id's category and records the edit in its notes.
func (s *TransactionService) SetManualCategory(ctx context.Context, id, cat string) error {
	cat = strings.TrimSpace(cat)
	if !s.taxonomy().IsLeaf(cat) {
		return fmt.Errorf("%q: %w", cat, ErrInvalidCategory)
	}
	t, err := s.Transactions.ReadByID(ctx, id)
	if err != nil {
		return err
	}
	notes := appendNote(t.Notes, "Manual categorization: "+cat)
	return s.Transactions.UpdateByID(ctx, id, repository.TransactionUpdate{
		ManualCategory: &cat,
		Notes:          &notes,
	})
}

// ClearManualCategory drops the override so AI or origin category applies again.
func (s *TransactionService) ClearManualCategory(ctx context.Context, id string) error {
	empty := ""
	return s.Transactions.UpdateByID(ctx, id, repository.TransactionUpdate{ManualCategory: &empty})
}

// SetAICategory stores an externally produced AI category.
func (s *TransactionService) SetAICategory(ctx context.Context, id, cat, reason string) error {
	if !s.taxonomy().IsLeaf(cat) {
		return fmt.Errorf("%q: %w", cat, ErrInvalidCategory)
	}
	return s.Transactions.UpdateByID(ctx, id, repository.TransactionUpdate{
		AICategory: &cat,
		AIReason:   &reason,
	})
}

// SetNotes replaces id's notes.
func (s *TransactionService) SetNotes(ctx context.Context, id, notes string) error {
	return s.Transactions.UpdateByID(ctx, id, repository.TransactionUpdate{Notes: &notes})
}

// SetTags replaces id's tags.
func (s *TransactionService) SetTags(ctx context.Context, id string, tags []string) error {
	return s.Transactions.UpdateByID(ctx, id, repository.TransactionUpdate{Tags: &tags})
}

func appendNote(existing, note string) string {
	if strings.TrimSpace(existing) == "" {
		return note
	}
	return existing + " | " + note
}
