package aggregator

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OfflineClient is an in-memory provider that generates a stable history per
// credential. It backs the CLI's --offline mode and service tests.
type OfflineClient struct {
	PageSize int
	Days     int
	Now      func() time.Time

	mu      sync.Mutex
	history map[string][]RawTransaction
}

// NewOfflineClient returns a client serving pageSize records per page.
func NewOfflineClient(pageSize int) *OfflineClient {
	return &OfflineClient{PageSize: pageSize, Days: 60, Now: time.Now}
}

func (c *OfflineClient) ExchangeToken(_ context.Context, publicToken string) (string, error) {
	if !strings.HasPrefix(publicToken, "public-") {
		return "", &CredentialError{Code: "INVALID_PUBLIC_TOKEN", Message: "public token must start with public-"}
	}
	return "access-offline-" + strings.TrimPrefix(publicToken, "public-"), nil
}

func (c *OfflineClient) ListAccounts(_ context.Context, credential string) ([]AccountSnapshot, error) {
	if err := checkOfflineCredential(credential); err != nil {
		return nil, err
	}
	checking, card := offlineAccountIDs(credential)
	return []AccountSnapshot{
		{ID: checking, Name: "Sample Checking", Type: "depository", Subtype: "checking", Mask: "0000", Currency: "USD", BalanceCurrent: float64Ptr(2400), BalanceAvailable: float64Ptr(2350)},
		{ID: card, Name: "Sample Card", Type: "credit", Subtype: "credit card", Mask: "3333", Currency: "USD", BalanceCurrent: float64Ptr(410.2), BalanceLimit: float64Ptr(5000)},
	}, nil
}

// SyncPage serves the generated history in order; the cursor is an offset.
func (c *OfflineClient) SyncPage(_ context.Context, credential, cursor string) (Page, error) {
	if err := checkOfflineCredential(credential); err != nil {
		return Page{}, err
	}
	all := c.generate(credential)

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, "offline-"))
		if err != nil || n < 0 || n > len(all) {
			return Page{}, &AggregationError{Op: "transactions sync", Code: "INVALID_CURSOR", Err: fmt.Errorf("bad cursor %q", cursor)}
		}
		offset = n
	}
	size := c.PageSize
	if size <= 0 {
		size = 100
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	return Page{
		Added:      append([]RawTransaction(nil), all[offset:end]...),
		NextCursor: "offline-" + strconv.Itoa(end),
		HasMore:    end < len(all),
	}, nil
}

func (c *OfflineClient) generate(credential string) []RawTransaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history == nil {
		c.history = map[string][]RawTransaction{}
	}
	if h, ok := c.history[credential]; ok {
		return h
	}

	seed := int64(0)
	for _, b := range []byte(credential) {
		seed = seed*31 + int64(b)
	}
	rng := rand.New(rand.NewSource(seed))
	checking, card := offlineAccountIDs(credential)
	today := c.Now().UTC().Truncate(24 * time.Hour)

	samples := []struct {
		name, merchant, primary, detailed string
		min, max                          int
	}{
		{"UBER EATS* SUSHI", "Uber Eats", "FOOD_AND_DRINK", "FOOD_AND_DRINK_RESTAURANT", 1500, 6000},
		{"AMAZON.COM*XYZ", "Amazon", "GENERAL_MERCHANDISE", "GENERAL_MERCHANDISE_ONLINE_MARKETPLACES", 900, 15000},
		{"WHOLE FOODS MKT", "Whole Foods", "FOOD_AND_DRINK", "FOOD_AND_DRINK_GROCERIES", 2500, 18000},
		{"SPOTIFY", "Spotify", "ENTERTAINMENT", "ENTERTAINMENT_MUSIC_AND_AUDIO", 1199, 1199},
		{"BLUE BOTTLE COFFEE", "Blue Bottle", "FOOD_AND_DRINK", "FOOD_AND_DRINK_COFFEE", 450, 900},
	}

	var out []RawTransaction
	id := func(i int) string {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(credential+":"+strconv.Itoa(i))).String()
	}
	days := c.Days
	if days <= 0 {
		days = 60
	}
	for d := days; d >= 0; d-- {
		date := today.AddDate(0, 0, -d)
		if d%14 == 0 {
			out = append(out, RawTransaction{
				TransactionID: id(len(out)), AccountID: checking, Amount: -2500, Date: date,
				Name: "SALARY ACME PAYROLL", MerchantName: "Acme", IsoCurrencyCode: "USD",
				PFCPrimary: "INCOME", PFCDetailed: "INCOME_WAGES", PFCConfidence: "VERY_HIGH",
				PaymentChannel: "other",
			})
		}
		if d%30 == 5 {
			// card payment: both legs, a day apart
			amt := float64(20000+rng.Intn(30000)) / 100
			out = append(out,
				RawTransaction{TransactionID: id(len(out)), AccountID: checking, Amount: amt, Date: date,
					Name: "CARD PAYMENT THANK YOU", IsoCurrencyCode: "USD", PFCPrimary: "LOAN_PAYMENTS",
					PFCDetailed: "LOAN_PAYMENTS_CREDIT_CARD_PAYMENT", PaymentChannel: "other"},
				RawTransaction{TransactionID: id(len(out) + 1), AccountID: card, Amount: -amt, Date: date.AddDate(0, 0, 1),
					Name: "PAYMENT RECEIVED", IsoCurrencyCode: "USD", PFCPrimary: "TRANSFER_IN",
					PFCDetailed: "TRANSFER_IN_ACCOUNT_TRANSFER", PaymentChannel: "other"},
			)
		}
		if rng.Intn(3) == 0 {
			s := samples[rng.Intn(len(samples))]
			cents := s.min
			if s.max > s.min {
				cents += rng.Intn(s.max - s.min)
			}
			out = append(out, RawTransaction{
				TransactionID: id(len(out)), AccountID: card, Amount: float64(cents) / 100, Date: date,
				Name: s.name, MerchantName: s.merchant, IsoCurrencyCode: "USD",
				PFCPrimary: s.primary, PFCDetailed: s.detailed, PFCConfidence: "HIGH",
				Pending: d < 2, PaymentChannel: "online",
			})
		}
	}
	c.history[credential] = out
	return out
}

func offlineAccountIDs(credential string) (string, string) {
	base := strings.TrimPrefix(credential, "access-offline-")
	return "chk-" + base, "card-" + base
}

func checkOfflineCredential(credential string) error {
	if !strings.HasPrefix(credential, "access-offline-") {
		return &CredentialError{Code: "INVALID_ACCESS_TOKEN", Message: "unknown access token"}
	}
	return nil
}
