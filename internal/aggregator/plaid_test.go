package aggregator

import (
	"errors"
	"testing"
	"time"

	"github.com/plaid/plaid-go/v29/plaid"
	"github.com/stretchr/testify/require"
)

func plaidTransaction() plaid.Transaction {
	t := plaid.NewTransactionWithDefaults()
	t.SetTransactionId("tx-1")
	t.SetAccountId("acc-1")
	t.SetAmount(5.75)
	t.SetIsoCurrencyCode("USD")
	t.SetDate("2025-03-10")
	t.SetAuthorizedDate("2025-03-09")
	t.SetName("BLUE BOTTLE COFFEE 123")
	t.SetMerchantName("Blue Bottle Coffee")
	t.SetOriginalDescription("POS BLUE BOTTLE #123")
	t.SetPending(true)
	t.SetPaymentChannel("in store")
	t.SetCheckNumber("1001")
	t.SetAccountOwner("jask")
	t.SetWebsite("bluebottlecoffee.com")
	t.SetCategory([]string{"Food and Drink", "Coffee Shop"})

	pfc := plaid.NewPersonalFinanceCategory("FOOD_AND_DRINK", "FOOD_AND_DRINK_COFFEE")
	pfc.SetConfidenceLevel("VERY_HIGH")
	t.SetPersonalFinanceCategory(*pfc)

	loc := plaid.NewLocationWithDefaults()
	loc.SetAddress("1 Ferry Building")
	loc.SetCity("San Francisco")
	loc.SetRegion("CA")
	loc.SetPostalCode("94111")
	loc.SetCountry("US")
	loc.SetLat(37.7955)
	loc.SetLon(-122.3937)
	loc.SetStoreNumber("123")
	t.SetLocation(*loc)

	pm := plaid.NewPaymentMetaWithDefaults()
	pm.SetReferenceNumber("ref-9")
	pm.SetPpdId("ppd-1")
	pm.SetPayee("Blue Bottle")
	pm.SetByOrderOf("someone")
	pm.SetPayer("jask")
	pm.SetPaymentMethod("card")
	pm.SetPaymentProcessor("stripe")
	pm.SetReason("coffee")
	t.SetPaymentMeta(*pm)
	return *t
}

func TestFromPlaidFieldMapping(t *testing.T) {
	t.Parallel()

	got, err := fromPlaid(plaidTransaction())
	require.NoError(t, err)

	authorized := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	lat, lon := 37.7955, -122.3937
	require.Equal(t, RawTransaction{
		TransactionID:       "tx-1",
		AccountID:           "acc-1",
		Amount:              5.75,
		IsoCurrencyCode:     "USD",
		Date:                time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		AuthorizedDate:      &authorized,
		Name:                "BLUE BOTTLE COFFEE 123",
		MerchantName:        "Blue Bottle Coffee",
		OriginalDescription: "POS BLUE BOTTLE #123",
		Pending:             true,
		PaymentChannel:      "in store",
		CheckNumber:         "1001",
		AccountOwner:        "jask",
		Website:             "bluebottlecoffee.com",
		LegacyCategory:      []string{"Food and Drink", "Coffee Shop"},
		PFCPrimary:          "FOOD_AND_DRINK",
		PFCDetailed:         "FOOD_AND_DRINK_COFFEE",
		PFCConfidence:       "VERY_HIGH",
		Location: &RawLocation{
			Address:     "1 Ferry Building",
			City:        "San Francisco",
			Region:      "CA",
			PostalCode:  "94111",
			Country:     "US",
			Lat:         &lat,
			Lon:         &lon,
			StoreNumber: "123",
		},
		PaymentMeta: &RawPaymentMeta{
			ReferenceNumber:  "ref-9",
			PPDID:            "ppd-1",
			Payee:            "Blue Bottle",
			ByOrderOf:        "someone",
			Payer:            "jask",
			PaymentMethod:    "card",
			PaymentProcessor: "stripe",
			Reason:           "coffee",
		},
	}, got)
}

func TestFromPlaidSparseRecord(t *testing.T) {
	t.Parallel()

	pt := plaid.NewTransactionWithDefaults()
	pt.SetTransactionId("tx-2")
	pt.SetAccountId("acc-1")
	pt.SetAmount(-1200)
	pt.SetUnofficialCurrencyCode("BTC")
	pt.SetDate("2025-03-01")
	pt.SetName("PAYROLL")

	got, err := fromPlaid(*pt)
	require.NoError(t, err)
	require.Equal(t, "BTC", got.UnofficialCurrency)
	require.Empty(t, got.IsoCurrencyCode)
	require.Nil(t, got.AuthorizedDate)
	require.Empty(t, got.PFCPrimary)
	require.Empty(t, got.MerchantName)
	require.NotNil(t, got.Location)
	require.Nil(t, got.Location.Lat)
	require.Nil(t, got.Location.Lon)

	// an unparseable authorized date is dropped, the record is kept
	pt.SetAuthorizedDate("yesterday")
	got, err = fromPlaid(*pt)
	require.NoError(t, err)
	require.Nil(t, got.AuthorizedDate)

	pt.SetDate("03/01/2025")
	_, err = fromPlaid(*pt)
	require.ErrorContains(t, err, "tx-2")
}

func plaidAPIError(typ plaid.PlaidErrorType, code, msg string) error {
	perr := plaid.NewPlaidError(typ, code, msg, plaid.NullableString{})
	return plaid.MakeGenericOpenAPIError(nil, "400 Bad Request", *perr)
}

func TestPlaidErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		credCode  string
		aggCode   string
		retryable bool
	}{
		{"invalid access token", plaidAPIError(plaid.PLAIDERRORTYPE_INVALID_INPUT, "INVALID_ACCESS_TOKEN", "bad token"), "INVALID_ACCESS_TOKEN", "", false},
		{"invalid public token", plaidAPIError(plaid.PLAIDERRORTYPE_INVALID_INPUT, "INVALID_PUBLIC_TOKEN", "expired"), "INVALID_PUBLIC_TOKEN", "", false},
		{"login required", plaidAPIError(plaid.PLAIDERRORTYPE_ITEM_ERROR, "ITEM_LOGIN_REQUIRED", "relink"), "ITEM_LOGIN_REQUIRED", "", false},
		{"item not found", plaidAPIError(plaid.PLAIDERRORTYPE_ITEM_ERROR, "ITEM_NOT_FOUND", "gone"), "ITEM_NOT_FOUND", "", false},
		{"access not granted", plaidAPIError(plaid.PLAIDERRORTYPE_ITEM_ERROR, "ACCESS_NOT_GRANTED", "denied"), "ACCESS_NOT_GRANTED", "", false},
		{"rate limit", plaidAPIError(plaid.PLAIDERRORTYPE_RATE_LIMIT_EXCEEDED, "TRANSACTIONS_SYNC_LIMIT", "slow down"), "", "TRANSACTIONS_SYNC_LIMIT", true},
		{"api error", plaidAPIError(plaid.PLAIDERRORTYPE_API_ERROR, "INTERNAL_SERVER_ERROR", "oops"), "", "INTERNAL_SERVER_ERROR", true},
		{"institution down", plaidAPIError(plaid.PLAIDERRORTYPE_INSTITUTION_ERROR, "INSTITUTION_DOWN", "down"), "", "INSTITUTION_DOWN", true},
		{"mutation during pagination", plaidAPIError(plaid.PLAIDERRORTYPE_TRANSACTIONS_ERROR, "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION", "restart"), "", "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION", true},
		{"bad request", plaidAPIError(plaid.PLAIDERRORTYPE_INVALID_REQUEST, "MISSING_FIELDS", "missing"), "", "MISSING_FIELDS", false},
		{"network", errors.New("dial tcp: connection refused"), "", "", true},
	}
	for _, tc := range cases {
		err := plaidError("transactions sync", tc.err)
		if tc.credCode != "" {
			var ce *CredentialError
			require.ErrorAs(t, err, &ce, tc.name)
			require.Equal(t, tc.credCode, ce.Code, tc.name)
			require.True(t, IsCredentialError(err), tc.name)
			continue
		}
		var ae *AggregationError
		require.ErrorAs(t, err, &ae, tc.name)
		require.False(t, IsCredentialError(err), tc.name)
		require.Equal(t, "transactions sync", ae.Op, tc.name)
		require.Equal(t, tc.aggCode, ae.Code, tc.name)
		require.Equal(t, tc.retryable, ae.Retryable, tc.name)
	}
}
