package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountUpsertInPlace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewInstitutionRepo(db).Create(ctx, "TestBank", "cred"))
	repo := NewAccountRepo(db)

	a := Account{ID: "acc-1", InstitutionName: "TestBank", Name: "Checking", Type: "depository", Mask: "0000", BalanceCurrent: floatPtr(100)}
	require.NoError(t, repo.Upsert(ctx, a))
	a.BalanceCurrent = floatPtr(250.5)
	a.Name = "Everyday Checking"
	require.NoError(t, repo.Upsert(ctx, a))

	list, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Everyday Checking", list[0].Name)
	require.InDelta(t, 250.5, *list[0].BalanceCurrent, 1e-9)
	require.Nil(t, list[0].BalanceLimit)
	require.True(t, list[0].Active)
}

func TestDeactivateMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewInstitutionRepo(db).Create(ctx, "TestBank", "cred"))
	repo := NewAccountRepo(db)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Upsert(ctx, Account{ID: id, InstitutionName: "TestBank", Name: id}))
	}

	n, err := repo.DeactivateMissing(ctx, "TestBank", []string{"a", "c"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	active, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 2)

	b, err := repo.Get(ctx, "b")
	require.NoError(t, err)
	require.False(t, b.Active)

	// a refresh that sees the account again reactivates it
	require.NoError(t, repo.Upsert(ctx, Account{ID: "b", InstitutionName: "TestBank", Name: "b"}))
	b, err = repo.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, b.Active)
}
