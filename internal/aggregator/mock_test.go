package aggregator

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ExchangeToken(ctx context.Context, publicToken string) (string, error) {
	args := m.Called(ctx, publicToken)
	return args.String(0), args.Error(1)
}

func (m *mockClient) ListAccounts(ctx context.Context, credential string) ([]AccountSnapshot, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]AccountSnapshot), args.Error(1)
}

func (m *mockClient) SyncPage(ctx context.Context, credential, cursor string) (Page, error) {
	args := m.Called(ctx, credential, cursor)
	return args.Get(0).(Page), args.Error(1)
}
