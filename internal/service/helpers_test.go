package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jask/ledgersync/internal/aggregator"
	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/config"
	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/database/repository"
	"github.com/jask/ledgersync/internal/llm"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ExchangeToken(ctx context.Context, publicToken string) (string, error) {
	args := m.Called(ctx, publicToken)
	return args.String(0), args.Error(1)
}

func (m *mockClient) ListAccounts(ctx context.Context, credential string) ([]aggregator.AccountSnapshot, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]aggregator.AccountSnapshot), args.Error(1)
}

func (m *mockClient) SyncPage(ctx context.Context, credential, cursor string) (aggregator.Page, error) {
	args := m.Called(ctx, credential, cursor)
	return args.Get(0).(aggregator.Page), args.Error(1)
}

// stepClock advances one minute per call.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Minute)
	return c.cur
}

type env struct {
	db           *sql.DB
	institutions *repository.InstitutionRepo
	accounts     *repository.AccountRepo
	transactions *repository.TransactionRepo
	client       *mockClient
	llm          *llm.Scripted
	clock        *stepClock
	sync         *SyncService
	txns         *TransactionService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		db:           db,
		institutions: repository.NewInstitutionRepo(db),
		accounts:     repository.NewAccountRepo(db),
		client:       &mockClient{},
		llm:          &llm.Scripted{},
		clock:        newStepClock(),
	}
	e.transactions = repository.NewTransactionRepo(db).WithClock(e.clock.Now)

	cfg := config.Default()
	cfg.LLM.RequestDelay = 0
	e.txns = &TransactionService{
		Transactions:       e.transactions,
		Categorizer:        NewCategorizer(e.llm, category.Default(), cfg.LLM, cfg.Policy.PromptTransferCandidates),
		TransferWindowDays: cfg.Policy.TransferWindowDays,
	}
	e.sync = &SyncService{
		Institutions: e.institutions,
		Accounts:     e.accounts,
		Transactions: e.transactions,
		Client:       e.client,
		MaxPages:     cfg.Sync.MaxPages,
		MinInterval:  cfg.Sync.MinInterval,
		Now:          e.clock.Now,
	}
	return e
}

// link registers an institution with a single checking account without going through the client.
func (e *env) link(t *testing.T, name, credential string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.institutions.Create(ctx, name, credential))
	require.NoError(t, e.accounts.Upsert(ctx, repository.Account{
		ID:              "acc-" + name,
		InstitutionName: name,
		Name:            name + " Checking",
		Type:            "depository",
		Subtype:         "checking",
		Active:          true,
	}))
}

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func raw(id, account, name string, amount float64, date time.Time) aggregator.RawTransaction {
	return aggregator.RawTransaction{
		TransactionID:   id,
		AccountID:       account,
		Name:            name,
		Amount:          amount,
		IsoCurrencyCode: "USD",
		Date:            date,
	}
}

func ids(txs []repository.Transaction) []string {
	out := make([]string, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.ID)
	}
	return out
}

func reply(cat, reason string) string {
	return `{"category": "` + cat + `", "reasoning": "` + reason + `"}`
}
