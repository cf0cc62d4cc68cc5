package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/plaid/plaid-go/v29/plaid"
)

// PlaidClient adapts the Plaid API to Client.
type PlaidClient struct {
	api *plaid.APIClient
}

// NewPlaidClient builds a client for the sandbox or production environment.
func NewPlaidClient(clientID, secret, environment string) (*PlaidClient, error) {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	switch environment {
	case "sandbox":
		cfg.UseEnvironment(plaid.Sandbox)
	case "production":
		cfg.UseEnvironment(plaid.Production)
	default:
		return nil, fmt.Errorf("unknown plaid environment %q", environment)
	}
	return &PlaidClient{api: plaid.NewAPIClient(cfg)}, nil
}

func (c *PlaidClient) ExchangeToken(ctx context.Context, publicToken string) (string, error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return "", plaidError("exchange token", err)
	}
	return resp.GetAccessToken(), nil
}

// SandboxPublicToken creates a public token for a sandbox institution, standing in for the link UI.
func (c *PlaidClient) SandboxPublicToken(ctx context.Context, institutionID string) (string, error) {
	req := plaid.NewSandboxPublicTokenCreateRequest(institutionID, []plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	resp, _, err := c.api.PlaidApi.SandboxPublicTokenCreate(ctx).SandboxPublicTokenCreateRequest(*req).Execute()
	if err != nil {
		return "", plaidError("sandbox public token", err)
	}
	return resp.GetPublicToken(), nil
}

func (c *PlaidClient) ListAccounts(ctx context.Context, credential string) ([]AccountSnapshot, error) {
	req := plaid.NewAccountsGetRequest(credential)
	resp, _, err := c.api.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
	if err != nil {
		return nil, plaidError("list accounts", err)
	}
	var out []AccountSnapshot
	for _, a := range resp.GetAccounts() {
		bal := a.GetBalances()
		snap := AccountSnapshot{
			ID:           a.GetAccountId(),
			Name:         a.GetName(),
			OfficialName: a.GetOfficialName(),
			Type:         string(a.GetType()),
			Subtype:      string(a.GetSubtype()),
			Mask:         a.GetMask(),
			Currency:     bal.GetIsoCurrencyCode(),
		}
		if v, ok := bal.GetCurrentOk(); ok && v != nil {
			snap.BalanceCurrent = float64Ptr(*v)
		}
		if v, ok := bal.GetAvailableOk(); ok && v != nil {
			snap.BalanceAvailable = float64Ptr(*v)
		}
		if v, ok := bal.GetLimitOk(); ok && v != nil {
			snap.BalanceLimit = float64Ptr(*v)
		}
		out = append(out, snap)
	}
	return out, nil
}

func (c *PlaidClient) SyncPage(ctx context.Context, credential, cursor string) (Page, error) {
	req := plaid.NewTransactionsSyncRequest(credential)
	if cursor != "" {
		req.SetCursor(cursor)
	}
	resp, _, err := c.api.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*req).Execute()
	if err != nil {
		return Page{}, plaidError("transactions sync", err)
	}
	page := Page{NextCursor: resp.GetNextCursor(), HasMore: resp.GetHasMore()}
	for _, t := range resp.GetAdded() {
		raw, err := fromPlaid(t)
		if err != nil {
			return Page{}, &AggregationError{Op: "transactions sync", Err: err}
		}
		page.Added = append(page.Added, raw)
	}
	for _, t := range resp.GetModified() {
		raw, err := fromPlaid(t)
		if err != nil {
			return Page{}, &AggregationError{Op: "transactions sync", Err: err}
		}
		page.Modified = append(page.Modified, raw)
	}
	for _, r := range resp.GetRemoved() {
		page.RemovedIDs = append(page.RemovedIDs, r.GetTransactionId())
	}
	return page, nil
}

func fromPlaid(t plaid.Transaction) (RawTransaction, error) {
	date, err := time.Parse("2006-01-02", t.GetDate())
	if err != nil {
		return RawTransaction{}, fmt.Errorf("transaction %s: date %q: %w", t.GetTransactionId(), t.GetDate(), err)
	}
	raw := RawTransaction{
		TransactionID:       t.GetTransactionId(),
		AccountID:           t.GetAccountId(),
		Amount:              t.GetAmount(),
		IsoCurrencyCode:     t.GetIsoCurrencyCode(),
		UnofficialCurrency:  t.GetUnofficialCurrencyCode(),
		Date:                date,
		Name:                t.GetName(),
		MerchantName:        t.GetMerchantName(),
		OriginalDescription: t.GetOriginalDescription(),
		Pending:             t.GetPending(),
		PaymentChannel:      t.GetPaymentChannel(),
		CheckNumber:         t.GetCheckNumber(),
		AccountOwner:        t.GetAccountOwner(),
		Website:             t.GetWebsite(),
		LegacyCategory:      t.GetCategory(),
	}
	if s := t.GetAuthorizedDate(); s != "" {
		if ad, err := time.Parse("2006-01-02", s); err == nil {
			raw.AuthorizedDate = &ad
		}
	}
	if pfc, ok := t.GetPersonalFinanceCategoryOk(); ok && pfc != nil {
		raw.PFCPrimary = pfc.GetPrimary()
		raw.PFCDetailed = pfc.GetDetailed()
		raw.PFCConfidence = pfc.GetConfidenceLevel()
	}
	if loc, ok := t.GetLocationOk(); ok && loc != nil {
		rl := &RawLocation{
			Address:     loc.GetAddress(),
			City:        loc.GetCity(),
			Region:      loc.GetRegion(),
			PostalCode:  loc.GetPostalCode(),
			Country:     loc.GetCountry(),
			StoreNumber: loc.GetStoreNumber(),
		}
		if lat, ok := loc.GetLatOk(); ok && lat != nil {
			rl.Lat = float64Ptr(*lat)
		}
		if lon, ok := loc.GetLonOk(); ok && lon != nil {
			rl.Lon = float64Ptr(*lon)
		}
		raw.Location = rl
	}
	if pm, ok := t.GetPaymentMetaOk(); ok && pm != nil {
		raw.PaymentMeta = &RawPaymentMeta{
			ReferenceNumber:  pm.GetReferenceNumber(),
			PPDID:            pm.GetPpdId(),
			Payee:            pm.GetPayee(),
			ByOrderOf:        pm.GetByOrderOf(),
			Payer:            pm.GetPayer(),
			PaymentMethod:    pm.GetPaymentMethod(),
			PaymentProcessor: pm.GetPaymentProcessor(),
			Reason:           pm.GetReason(),
		}
	}
	return raw, nil
}

var credentialCodes = map[string]bool{
	"INVALID_ACCESS_TOKEN": true,
	"INVALID_PUBLIC_TOKEN": true,
	"ITEM_LOGIN_REQUIRED":  true,
	"ITEM_NOT_FOUND":       true,
	"ACCESS_NOT_GRANTED":   true,
}

var retryableTypes = map[string]bool{
	"RATE_LIMIT_EXCEEDED": true,
	"API_ERROR":           true,
	"INSTITUTION_ERROR":   true,
}

// plaidError maps a Plaid SDK error onto CredentialError or AggregationError.
func plaidError(op string, err error) error {
	perr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return &AggregationError{Op: op, Retryable: true, Err: err}
	}
	code := perr.GetErrorCode()
	if credentialCodes[code] {
		return &CredentialError{Code: code, Message: perr.GetErrorMessage()}
	}
	return &AggregationError{
		Op:        op,
		Code:      code,
		Retryable: retryableTypes[string(perr.GetErrorType())] || code == "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION",
		Err:       fmt.Errorf("%s", perr.GetErrorMessage()),
	}
}

func float64Ptr(f float64) *float64 { return &f }
