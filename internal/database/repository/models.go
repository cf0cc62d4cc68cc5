package repository

import (
	"time"

	"github.com/jask/ledgersync/internal/category"
)

// Institution represents a linked financial institution.
type Institution struct {
	Name             string
	AccessCredential string
	Cursor           string // empty when no sync has completed
	LastSync         *time.Time
	CreatedAt        time.Time
}

// Account represents an account row.
type Account struct {
	ID               string
	InstitutionName  string
	Name             string
	OfficialName     string
	Type             string
	Subtype          string
	Mask             string
	BalanceCurrent   *float64
	BalanceAvailable *float64
	BalanceLimit     *float64
	Currency         string
	Owner            string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transaction represents a transaction row. Positive amounts are money out.
type Transaction struct {
	ID                  string
	AccountID           string
	Date                time.Time
	AuthorizedDate      *time.Time
	Name                string
	MerchantName        string
	OriginalDescription string
	Amount              float64
	Currency            string
	Pending             bool
	TransactionType     string
	Location            string
	PaymentDetails      string
	Website             string
	CheckNumber         string
	AccountOwner        string
	OriginCategory      string

	// user-owned, never overwritten by provider refreshes
	AICategory     string
	AIReason       string
	ManualCategory string
	Notes          string
	Tags           []string

	CreatedAt time.Time
	UpdatedAt time.Time

	// from the accounts join; Institution also seeds placeholder accounts on upsert
	Institution string
	AccountName string
}

// EffectiveCategory resolves manual, then AI, then origin category.
func (t Transaction) EffectiveCategory() string {
	return category.Effective(t.ManualCategory, t.AICategory, t.OriginCategory)
}

// IsUncategorized is true when no category source is set.
func (t Transaction) IsUncategorized() bool {
	return category.IsUncategorized(t.ManualCategory, t.AICategory, t.OriginCategory)
}

// TransactionFilters is a conjunction; zero-valued fields impose no constraint.
type TransactionFilters struct {
	DateStart     *time.Time
	DateEnd       *time.Time
	Banks         []string // institution names
	Categories    []string // AI or manual exact match, or substring of the origin category
	AmountMin     *float64
	AmountMax     *float64
	Pending       *bool
	Uncategorized bool
	Limit         int
}

// TransactionUpdate carries user-editable fields; nil fields are left alone.
type TransactionUpdate struct {
	AICategory     *string
	AIReason       *string
	ManualCategory *string
	Notes          *string
	Tags           *[]string
}

// TransferQuery describes the leg whose counterpart is being searched for.
type TransferQuery struct {
	ExcludeID        string
	ExcludeAccountID string
	Amount           float64
	Date             time.Time
	WindowDays       int
}

// UpsertResult reports what a batch upsert did.
type UpsertResult struct {
	Processed []string
	Created   []string
	Updated   []string
	Unchanged int
	Removed   int
}

// StoreStats summarizes table contents.
type StoreStats struct {
	Institutions      int
	Accounts          int
	Transactions      int
	Pending           int
	AICategorized     int
	ManualCategorized int
	Uncategorized     int
}
