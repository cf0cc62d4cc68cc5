// Package aggregator wraps the bank transaction aggregation provider.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is the provider surface the sync engine needs.
type Client interface {
	// ExchangeToken trades a one-time public token for a long-lived access credential.
	ExchangeToken(ctx context.Context, publicToken string) (string, error)
	ListAccounts(ctx context.Context, credential string) ([]AccountSnapshot, error)
	// SyncPage fetches one page of changes after cursor ("" for the beginning of history).
	SyncPage(ctx context.Context, credential, cursor string) (Page, error)
}

// AccountSnapshot is one account as reported by the provider.
type AccountSnapshot struct {
	ID               string
	Name             string
	OfficialName     string
	Type             string
	Subtype          string
	Mask             string
	BalanceCurrent   *float64
	BalanceAvailable *float64
	BalanceLimit     *float64
	Currency         string
}

// Page is a single provider response.
type Page struct {
	Added      []RawTransaction
	Modified   []RawTransaction
	RemovedIDs []string
	NextCursor string
	HasMore    bool
}

// RawLocation mirrors the provider's nested location object.
type RawLocation struct {
	Address     string
	City        string
	Region      string
	PostalCode  string
	Country     string
	Lat         *float64
	Lon         *float64
	StoreNumber string
}

// RawPaymentMeta mirrors the provider's payment metadata object.
type RawPaymentMeta struct {
	ReferenceNumber  string
	PPDID            string
	Payee            string
	ByOrderOf        string
	Payer            string
	PaymentMethod    string
	PaymentProcessor string
	Reason           string
}

// RawTransaction is the provider's transaction shape before Transform.
type RawTransaction struct {
	TransactionID       string
	AccountID           string
	Amount              float64
	IsoCurrencyCode     string
	UnofficialCurrency  string
	Date                time.Time
	AuthorizedDate      *time.Time
	Name                string
	MerchantName        string
	OriginalDescription string
	Pending             bool
	PaymentChannel      string
	CheckNumber         string
	AccountOwner        string
	Website             string
	LegacyCategory      []string
	PFCPrimary          string
	PFCDetailed         string
	PFCConfidence       string
	Location            *RawLocation
	PaymentMeta         *RawPaymentMeta
}

// CredentialError reports an invalid, expired or revoked token.
type CredentialError struct {
	Code    string
	Message string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential rejected (%s): %s", e.Code, e.Message)
}

// AggregationError reports a provider or network failure.
type AggregationError struct {
	Op        string
	Code      string
	Retryable bool
	Err       error
}

func (e *AggregationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("aggregation %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("aggregation %s failed: %v", e.Op, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// IsCredentialError reports whether err carries a CredentialError.
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}
