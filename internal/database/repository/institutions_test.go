package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstitutionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInstitutionRepo(db)

	require.NoError(t, repo.Create(ctx, "TestBank", "secret-1"))
	err := repo.Create(ctx, "TestBank", "secret-2")
	require.ErrorIs(t, err, ErrAlreadyExists)

	cred, err := repo.GetAccessCredential(ctx, "TestBank")
	require.NoError(t, err)
	require.Equal(t, "secret-1", cred, "create must not overwrite")

	_, err = repo.GetAccessCredential(ctx, "Nope")
	require.ErrorIs(t, err, ErrNotFound)

	cursor, err := repo.GetCursor(ctx, "TestBank")
	require.NoError(t, err)
	require.Empty(t, cursor)

	require.NoError(t, repo.SetCursor(ctx, "TestBank", "c-1"))
	cursor, err = repo.GetCursor(ctx, "TestBank")
	require.NoError(t, err)
	require.Equal(t, "c-1", cursor)

	require.NoError(t, repo.SetCursor(ctx, "TestBank", ""))
	cursor, err = repo.GetCursor(ctx, "TestBank")
	require.NoError(t, err)
	require.Empty(t, cursor)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetLastSync(ctx, "TestBank", at))
	inst, err := repo.Get(ctx, "TestBank")
	require.NoError(t, err)
	require.NotNil(t, inst.LastSync)
	require.True(t, at.Equal(*inst.LastSync))

	require.ErrorIs(t, repo.SetLastSync(ctx, "Nope", at), ErrNotFound)
	require.ErrorIs(t, repo.SetCursor(ctx, "Nope", "x"), ErrNotFound)
}

func TestListInstitutionsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewInstitutionRepo(newTestDB(t))
	for _, name := range []string{"First", "Second", "Third"} {
		require.NoError(t, repo.Create(ctx, name, "cred"))
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "Third", list[0].Name)
	require.Equal(t, "First", list[2].Name)
}

func TestDeleteInstitutionCascadesAccountsOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	insts := NewInstitutionRepo(db)
	accts := NewAccountRepo(db)
	txs := NewTransactionRepo(db)

	require.NoError(t, insts.Create(ctx, "TestBank", "cred"))
	require.NoError(t, accts.Upsert(ctx, Account{ID: "acc-1", InstitutionName: "TestBank", Name: "Checking"}))
	_, err := txs.Upsert(ctx, []Transaction{txn("t1", "acc-1", 10, day(1))})
	require.NoError(t, err)

	require.NoError(t, insts.Delete(ctx, "TestBank"))
	require.ErrorIs(t, insts.Delete(ctx, "TestBank"), ErrNotFound)

	_, err = accts.Get(ctx, "acc-1")
	require.ErrorIs(t, err, ErrNotFound)

	kept, err := txs.ReadByID(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", kept.AccountID)
	require.Empty(t, kept.Institution)
}
