package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jask/ledgersync/internal/aggregator"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/logger"
	"github.com/jask/ledgersync/internal/secrets"
)

// EventPublisher receives finished sync results.
type EventPublisher interface {
	Publish(ctx context.Context, kind string, payload any) error
}

// IDCategorizer categorizes freshly created transactions after a sync.
type IDCategorizer interface {
	CategorizeIDs(ctx context.Context, ids []string) BulkResult
}

// SyncService pulls changes from the aggregation provider into the store.
// Institutions are processed one at a time; concurrent requests for the same
// institution share a single run.
type SyncService struct {
	Institutions *repository.InstitutionRepo
	Accounts     *repository.AccountRepo
	Transactions *repository.TransactionRepo
	Client       aggregator.Client
	Sealer       *secrets.Sealer // nil stores credentials as given
	Events       EventPublisher  // optional
	Categorizer  IDCategorizer   // optional, runs on created ids after each sync
	MaxPages     int
	MinInterval  time.Duration
	Now          func() time.Time

	group singleflight.Group
}

func (s *SyncService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// SyncAccount syncs one institution. Errors are reported in the result, never returned.
func (s *SyncService) SyncAccount(ctx context.Context, name string, full bool) SyncResult {
	res := s.syncOne(ctx, name, full)
	s.publish(ctx, res)
	return res
}

// SyncAll syncs every institution in listing order and stamps each one's
// last-sync time whether or not its sync succeeded.
func (s *SyncService) SyncAll(ctx context.Context, full bool) SyncResult {
	return s.syncMany(ctx, full, false)
}

// SyncDue is SyncAll(false) restricted to institutions outside MinInterval.
// Skipped institutions are reported as info, not errors.
func (s *SyncService) SyncDue(ctx context.Context) SyncResult {
	return s.syncMany(ctx, false, true)
}

func (s *SyncService) syncMany(ctx context.Context, full, onlyDue bool) SyncResult {
	res := newSyncResult(uuid.NewString(), s.now())
	log := logger.FromContext(ctx).With().Str("run_id", res.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	insts, err := s.Institutions.List(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list institutions: %v", err))
		s.publish(ctx, res)
		return res
	}
	if len(insts) == 0 {
		res.Errors = append(res.Errors, "no institutions linked")
		s.publish(ctx, res)
		return res
	}

	attempted := make([]string, 0, len(insts))
	for _, inst := range insts {
		if onlyDue {
			if ok, wait := s.due(inst); !ok {
				res.Info = append(res.Info, fmt.Sprintf("%s: rate limited, next sync allowed in %s", inst.Name, wait.Round(time.Second)))
				res.Institutions[inst.Name] = InstitutionResult{Skipped: true}
				continue
			}
		}
		attempted = append(attempted, inst.Name)
		res.merge(inst.Name, s.syncOne(ctx, inst.Name, full))
	}

	stamp := s.now()
	for _, name := range attempted {
		if err := s.Institutions.SetLastSync(ctx, name, stamp); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("stamp last sync for %s: %v", name, err))
		}
	}

	res.Success = len(res.Errors) == 0
	log.Info().
		Int("institutions", len(insts)).
		Int("new", res.NewCount).
		Int("updated", res.UpdatedCount).
		Int("removed", res.RemovedCount).
		Int("errors", len(res.Errors)).
		Msg("sync run finished")
	s.publish(ctx, res)
	return res
}

func (s *SyncService) syncOne(ctx context.Context, name string, full bool) SyncResult {
	key := fmt.Sprintf("%s|%t", name, full)
	v, _, _ := s.group.Do(key, func() (interface{}, error) {
		return s.syncInstitution(ctx, name, full), nil
	})
	return v.(SyncResult)
}

func (s *SyncService) syncInstitution(ctx context.Context, name string, full bool) SyncResult {
	res := newSyncResult(uuid.NewString(), s.now())
	log := logger.FromContext(ctx).With().Str("institution", name).Bool("full", full).Logger()
	ctx = logger.WithContext(ctx, log)

	fail := func(ir InstitutionResult, err error) SyncResult {
		msg := fmt.Sprintf("sync %s: %v", name, err)
		log.Error().Err(err).Msg("sync failed")
		ir.Error = err.Error()
		res.Errors = append(res.Errors, msg)
		res.Institutions[name] = ir
		res.Success = false
		return res
	}

	inst, err := s.Institutions.Get(ctx, name)
	if err != nil {
		return fail(InstitutionResult{}, err)
	}
	credential, err := s.openCredential(inst.AccessCredential)
	if err != nil {
		return fail(InstitutionResult{}, err)
	}

	cursor := inst.Cursor
	if full {
		cursor = ""
	}
	batch, err := aggregator.SyncAll(ctx, s.Client, credential, cursor, s.MaxPages)
	if err != nil {
		return fail(InstitutionResult{}, err)
	}
	ir := InstitutionResult{Pages: batch.Pages, Truncated: batch.Truncated}

	incoming := aggregator.TransformAll(append(batch.Added, batch.Modified...), name)
	applied, err := s.Transactions.ApplyChanges(ctx, incoming, batch.RemovedIDs)
	if err != nil {
		return fail(ir, err)
	}

	if batch.NextCursor != "" && batch.NextCursor != inst.Cursor {
		if err := s.Institutions.SetCursor(ctx, name, batch.NextCursor); err != nil {
			return fail(ir, fmt.Errorf("persist cursor: %w", err))
		}
	}
	if err := s.Institutions.SetLastSync(ctx, name, s.now()); err != nil {
		return fail(ir, fmt.Errorf("stamp last sync: %w", err))
	}

	ir.Processed = len(applied.Processed)
	ir.New = len(applied.Created)
	ir.Updated = len(applied.Updated)
	ir.Removed = applied.Removed
	res.Institutions[name] = ir
	res.NewCount = ir.New
	res.UpdatedCount = ir.Updated
	res.RemovedCount = ir.Removed
	res.Success = true
	if batch.Truncated {
		res.Info = append(res.Info, fmt.Sprintf("%s: stopped after %d pages, remaining changes arrive on the next sync", name, batch.Pages))
	}

	log.Info().
		Int("pages", batch.Pages).
		Int("added", len(batch.Added)).
		Int("modified", len(batch.Modified)).
		Int("removed", applied.Removed).
		Int("new", ir.New).
		Int("updated", ir.Updated).
		Msg("institution synced")

	if s.Categorizer != nil && len(applied.Created) > 0 {
		bulk := s.Categorizer.CategorizeIDs(ctx, applied.Created)
		res.Info = append(res.Info, fmt.Sprintf("%s: categorized %d of %d new transactions", name, bulk.SuccessCount, len(applied.Created)))
		for _, e := range bulk.Errors {
			log.Warn().Str("error", e).Msg("auto categorization failed")
		}
	}
	return res
}

// LinkAccount exchanges a public token, records the institution and upserts its accounts.
// Linking an existing name replaces its credential and restarts its history.
func (s *SyncService) LinkAccount(ctx context.Context, publicToken, name string) LinkResult {
	name = strings.TrimSpace(name)
	res := LinkResult{InstitutionName: name}
	log := logger.FromContext(ctx).With().Str("institution", name).Logger()

	fail := func(err error) LinkResult {
		log.Error().Err(err).Msg("link failed")
		res.Error = fmt.Sprintf("link %s: %v", name, err)
		return res
	}
	if name == "" {
		return fail(errors.New("institution name is required"))
	}

	credential, err := s.Client.ExchangeToken(ctx, publicToken)
	if err != nil {
		return fail(err)
	}
	snapshots, err := s.Client.ListAccounts(ctx, credential)
	if err != nil {
		return fail(err)
	}
	stored, err := s.sealCredential(credential)
	if err != nil {
		return fail(err)
	}

	err = s.Institutions.Create(ctx, name, stored)
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		if err := s.Institutions.UpdateCredential(ctx, name, stored); err != nil {
			return fail(err)
		}
		if err := s.Institutions.SetCursor(ctx, name, ""); err != nil {
			return fail(err)
		}
		log.Info().Msg("institution already linked, credential replaced")
	case err != nil:
		return fail(err)
	}

	keep := make([]string, 0, len(snapshots))
	for _, a := range snapshots {
		if err := s.Accounts.Upsert(ctx, accountFromSnapshot(name, a)); err != nil {
			return fail(err)
		}
		keep = append(keep, a.ID)
	}
	if _, err := s.Accounts.DeactivateMissing(ctx, name, keep); err != nil {
		return fail(err)
	}

	res.Success = true
	res.AccountCount = len(snapshots)
	log.Info().Int("accounts", len(snapshots)).Msg("institution linked")
	return res
}

// UnlinkAccount forgets the institution and its accounts. Transactions stay.
func (s *SyncService) UnlinkAccount(ctx context.Context, name string) error {
	if err := s.Institutions.Delete(ctx, name); err != nil {
		return fmt.Errorf("unlink %s: %w", name, err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("institution", name).Msg("institution unlinked")
	return nil
}

// SyncStatus maps each institution to its last sync time (nil when never synced).
func (s *SyncService) SyncStatus(ctx context.Context) (map[string]*time.Time, error) {
	insts, err := s.Institutions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*time.Time, len(insts))
	for _, inst := range insts {
		out[inst.Name] = inst.LastSync
	}
	return out, nil
}

// CanSync reports whether an incremental sync of name is allowed now and,
// if not, how long until it is.
func (s *SyncService) CanSync(ctx context.Context, name string) (bool, time.Duration, error) {
	inst, err := s.Institutions.Get(ctx, name)
	if err != nil {
		return false, 0, err
	}
	ok, wait := s.due(inst)
	return ok, wait, nil
}

func (s *SyncService) due(inst repository.Institution) (bool, time.Duration) {
	if inst.LastSync == nil || s.MinInterval <= 0 {
		return true, 0
	}
	elapsed := s.now().Sub(*inst.LastSync)
	if elapsed >= s.MinInterval {
		return true, 0
	}
	return false, s.MinInterval - elapsed
}

func (s *SyncService) openCredential(stored string) (string, error) {
	if strings.TrimSpace(stored) == "" {
		return "", &aggregator.CredentialError{Code: "MISSING_CREDENTIAL", Message: "no access credential stored"}
	}
	if s.Sealer == nil {
		return stored, nil
	}
	plain, err := s.Sealer.Open(stored)
	if err != nil {
		return "", &aggregator.CredentialError{Code: "UNREADABLE_CREDENTIAL", Message: err.Error()}
	}
	return plain, nil
}

func (s *SyncService) sealCredential(plain string) (string, error) {
	if s.Sealer == nil {
		return plain, nil
	}
	return s.Sealer.Seal(plain)
}

func (s *SyncService) publish(ctx context.Context, res SyncResult) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, "sync.completed", res); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", res.RunID).Msg("publish sync result")
	}
}

func accountFromSnapshot(institution string, a aggregator.AccountSnapshot) repository.Account {
	return repository.Account{
		ID:               a.ID,
		InstitutionName:  institution,
		Name:             a.Name,
		OfficialName:     a.OfficialName,
		Type:             a.Type,
		Subtype:          a.Subtype,
		Mask:             a.Mask,
		BalanceCurrent:   a.BalanceCurrent,
		BalanceAvailable: a.BalanceAvailable,
		BalanceLimit:     a.BalanceLimit,
		Currency:         a.Currency,
		Active:           true,
	}
}
