package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jask/ledgersync/internal/database"
)

const dateLayout = "2006-01-02"

// Policy holds the matching tolerances applied by the store.
type Policy struct {
	AmountTolerance      float64
	TransferTolerance    float64
	TransferMaxResults   int
	DuplicateTolerance   float64
	DuplicateWindowDays  int
	DuplicateMaxDistance float64
}

// DefaultPolicy returns the stock tolerances.
func DefaultPolicy() Policy {
	return Policy{
		AmountTolerance:      0.001,
		TransferTolerance:    0.01,
		TransferMaxResults:   5,
		DuplicateTolerance:   0.01,
		DuplicateWindowDays:  3,
		DuplicateMaxDistance: 0.4,
	}
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db     *sql.DB
	policy Policy
	now    func() time.Time
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db, policy: DefaultPolicy(), now: database.Now}
}

// WithPolicy returns a copy of the repo using p.
func (r *TransactionRepo) WithPolicy(p Policy) *TransactionRepo {
	cp := *r
	cp.policy = p
	return &cp
}

// WithClock returns a copy of the repo stamping rows with now.
func (r *TransactionRepo) WithClock(now func() time.Time) *TransactionRepo {
	cp := *r
	cp.now = now
	return &cp
}

// Upsert inserts new transactions and merges provider fields into existing ones
// in a single atomic unit. On failure nothing is persisted and the id list is empty.
func (r *TransactionRepo) Upsert(ctx context.Context, txs []Transaction) ([]string, error) {
	res, err := r.ApplyChanges(ctx, txs, nil)
	if err != nil {
		return []string{}, err
	}
	return res.Processed, nil
}

// ApplyChanges upserts txs and deletes removedIDs in one database transaction.
func (r *TransactionRepo) ApplyChanges(ctx context.Context, txs []Transaction, removedIDs []string) (UpsertResult, error) {
	var res UpsertResult
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		now := r.now()
		for _, t := range collapseByID(txs) {
			if t.ID == "" {
				return errors.New("transaction without id")
			}
			if t.AccountID == "" {
				return fmt.Errorf("transaction %s: missing account id", t.ID)
			}
			if t.Date.IsZero() {
				return fmt.Errorf("transaction %s: missing date", t.ID)
			}
			if err := ensureAccount(ctx, tx, t, now); err != nil {
				return fmt.Errorf("ensure account %s: %w", t.AccountID, err)
			}
			existing, err := scanTransaction(tx.QueryRowContext(ctx, selectTransactions+` WHERE t.id = ?`, t.ID))
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if err := insertTransaction(ctx, tx, t, now); err != nil {
					return fmt.Errorf("insert %s: %w", t.ID, err)
				}
				res.Created = append(res.Created, t.ID)
			case err != nil:
				return fmt.Errorf("load %s: %w", t.ID, err)
			default:
				cols, args := r.providerChanges(existing, t)
				if len(cols) == 0 {
					res.Unchanged++
					break
				}
				q := `UPDATE transactions SET ` + strings.Join(cols, ", ") + `, updated_at = ? WHERE id = ?`
				args = append(args, now, t.ID)
				if _, err := tx.ExecContext(ctx, q, args...); err != nil {
					return fmt.Errorf("update %s: %w", t.ID, err)
				}
				res.Updated = append(res.Updated, t.ID)
			}
			res.Processed = append(res.Processed, t.ID)
		}
		if len(removedIDs) > 0 {
			n, err := deleteIDs(ctx, tx, removedIDs)
			if err != nil {
				return fmt.Errorf("delete removed: %w", err)
			}
			res.Removed = n
		}
		return nil
	})
	if err != nil {
		return UpsertResult{Processed: []string{}}, &StorageError{Op: "upsert", Err: err}
	}
	if res.Processed == nil {
		res.Processed = []string{}
	}
	return res, nil
}

// collapseByID keeps one record per id. A record added on one page and
// modified on a later page merges as a single row using the later values,
// at the position of its first appearance.
func collapseByID(txs []Transaction) []Transaction {
	pos := make(map[string]int, len(txs))
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if i, ok := pos[t.ID]; ok && t.ID != "" {
			out[i] = t
			continue
		}
		pos[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

// providerChanges lists SET clauses for provider-sourced fields that differ.
// Empty text and NULL compare equal; amounts compare within AmountTolerance.
func (r *TransactionRepo) providerChanges(old, t Transaction) ([]string, []interface{}) {
	var cols []string
	var args []interface{}
	set := func(col string, v interface{}) {
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}
	text := func(col, a, b string) {
		if a != b {
			set(col, nullString(b))
		}
	}
	if old.AccountID != t.AccountID {
		set("account_id", t.AccountID)
	}
	if formatDate(old.Date) != formatDate(t.Date) {
		set("date", formatDate(t.Date))
	}
	text("authorized_date", formatDatePtr(old.AuthorizedDate), formatDatePtr(t.AuthorizedDate))
	if old.Name != t.Name {
		set("name", t.Name)
	}
	text("merchant_name", old.MerchantName, t.MerchantName)
	text("original_description", old.OriginalDescription, t.OriginalDescription)
	if math.Abs(old.Amount-t.Amount) > r.policy.AmountTolerance {
		set("amount", t.Amount)
	}
	text("currency", old.Currency, t.Currency)
	if old.Pending != t.Pending {
		set("pending", t.Pending)
	}
	text("transaction_type", old.TransactionType, t.TransactionType)
	text("location", old.Location, t.Location)
	text("payment_details", old.PaymentDetails, t.PaymentDetails)
	text("website", old.Website, t.Website)
	text("check_number", old.CheckNumber, t.CheckNumber)
	text("account_owner", old.AccountOwner, t.AccountOwner)
	text("origin_category", strings.TrimSpace(old.OriginCategory), strings.TrimSpace(t.OriginCategory))
	return cols, args
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t Transaction, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, date, authorized_date, name, merchant_name, original_description, amount,
	 currency, pending, transaction_type, location, payment_details, website, check_number,
	 account_owner, origin_category, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		t.ID, t.AccountID, formatDate(t.Date), nullString(formatDatePtr(t.AuthorizedDate)), t.Name,
		nullString(t.MerchantName), nullString(t.OriginalDescription), t.Amount, nullString(t.Currency),
		t.Pending, nullString(t.TransactionType), nullString(t.Location), nullString(t.PaymentDetails),
		nullString(t.Website), nullString(t.CheckNumber), nullString(t.AccountOwner),
		nullCategory(t.OriginCategory), now, now)
	return err
}

// ensureAccount creates a placeholder account for ids the store has not seen.
// An institution that is not linked leaves the placeholder unowned.
func ensureAccount(ctx context.Context, tx *sql.Tx, t Transaction, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO accounts(id, institution_name, name, owner, active, created_at, updated_at)
	VALUES(?, (SELECT name FROM institutions WHERE name = ?), ?, ?, 1, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		t.AccountID, nullString(t.Institution), t.AccountName, nullString(t.AccountOwner), now, now)
	return err
}

func (r *TransactionRepo) ReadByID(ctx context.Context, id string) (Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, selectTransactions+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ReadAll returns every transaction, newest first.
func (r *TransactionRepo) ReadAll(ctx context.Context) ([]Transaction, error) {
	return r.query(ctx, selectTransactions+orderNewestFirst)
}

// ReadWithFilters applies f as a conjunction, newest first.
func (r *TransactionRepo) ReadWithFilters(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.DateStart != nil {
		where = append(where, "t.date >= ?")
		args = append(args, formatDate(*f.DateStart))
	}
	if f.DateEnd != nil {
		where = append(where, "t.date <= ?")
		args = append(args, formatDate(*f.DateEnd))
	}
	if len(f.Banks) > 0 {
		where = append(where, "a.institution_name IN ("+placeholders(len(f.Banks))+")")
		for _, b := range f.Banks {
			args = append(args, b)
		}
	}
	if len(f.Categories) > 0 {
		var ors []string
		for _, c := range f.Categories {
			ors = append(ors, `t.origin_category LIKE ? ESCAPE '\'`, "t.ai_category = ?", "t.manual_category = ?")
			args = append(args, "%"+escapeLike(c)+"%", c, c)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if f.AmountMin != nil {
		where = append(where, "t.amount >= ?")
		args = append(args, *f.AmountMin)
	}
	if f.AmountMax != nil {
		where = append(where, "t.amount <= ?")
		args = append(args, *f.AmountMax)
	}
	if f.Pending != nil {
		where = append(where, "t.pending = ?")
		args = append(args, *f.Pending)
	}
	if f.Uncategorized {
		where = append(where, uncategorizedClause)
	}

	query := selectTransactions
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderNewestFirst
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.query(ctx, query, args...)
}

// ReadUncategorized returns rows without an AI category. limit <= 0 means no cap.
func (r *TransactionRepo) ReadUncategorized(ctx context.Context, limit int) ([]Transaction, error) {
	query := selectTransactions + ` WHERE COALESCE(t.ai_category, '') = ''` + orderNewestFirst
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

// UpdateByID applies u and always stamps updated_at.
func (r *TransactionRepo) UpdateByID(ctx context.Context, id string, u TransactionUpdate) error {
	var sets []string
	var args []interface{}
	set := func(col string, v *string, conv func(string) sql.NullString) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, conv(*v))
		}
	}
	set("ai_category", u.AICategory, nullCategory)
	set("ai_reason", u.AIReason, nullString)
	set("manual_category", u.ManualCategory, nullCategory)
	set("notes", u.Notes, nullString)
	if u.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, nullString(joinTags(*u.Tags)))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id)

	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteByIDs removes the given rows and returns how many existed.
func (r *TransactionRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		n, err = deleteIDs(ctx, tx, ids)
		return err
	})
	return n, err
}

func deleteIDs(ctx context.Context, tx *sql.Tx, ids []string) (int, error) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeletePendingBefore removes pending rows dated before cutoff.
func (r *TransactionRepo) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE pending = 1 AND date < ?`, formatDate(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// FindPotentialTransfers returns opposite-signed transactions of matching
// magnitude in other accounts within q.WindowDays, closest date first.
func (r *TransactionRepo) FindPotentialTransfers(ctx context.Context, q TransferQuery) ([]Transaction, error) {
	day := formatDate(q.Date)
	return r.query(ctx, selectTransactions+`
	WHERE t.id != ?
	  AND t.account_id != ?
	  AND ABS(t.amount + ?) < ?
	  AND t.amount * ? < 0
	  AND ABS(julianday(t.date) - julianday(?)) <= ?
	ORDER BY ABS(julianday(t.date) - julianday(?)) ASC, t.id
	LIMIT ?`,
		q.ExcludeID, q.ExcludeAccountID, q.Amount, r.policy.TransferTolerance, q.Amount,
		day, q.WindowDays, day, r.policy.TransferMaxResults)
}

// GetDateRange returns the earliest and latest transaction dates, or nils when empty.
func (r *TransactionRepo) GetDateRange(ctx context.Context) (*time.Time, *time.Time, error) {
	var lo, hi sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM transactions`).Scan(&lo, &hi); err != nil {
		return nil, nil, err
	}
	if !lo.Valid || !hi.Valid {
		return nil, nil, nil
	}
	first, err := parseDate(lo.String)
	if err != nil {
		return nil, nil, err
	}
	last, err := parseDate(hi.String)
	if err != nil {
		return nil, nil, err
	}
	return &first, &last, nil
}

// Stats counts rows by categorization source.
func (r *TransactionRepo) Stats(ctx context.Context) (StoreStats, error) {
	var s StoreStats
	err := r.db.QueryRowContext(ctx, `
	SELECT
	 (SELECT COUNT(*) FROM institutions),
	 (SELECT COUNT(*) FROM accounts WHERE active = 1),
	 COUNT(*),
	 COALESCE(SUM(CASE WHEN pending = 1 THEN 1 ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN COALESCE(ai_category, '') != '' THEN 1 ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN COALESCE(manual_category, '') != '' THEN 1 ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN `+strings.ReplaceAll(uncategorizedClause, "t.", "")+` THEN 1 ELSE 0 END), 0)
	FROM transactions`).Scan(&s.Institutions, &s.Accounts, &s.Transactions, &s.Pending,
		&s.AICategorized, &s.ManualCategorized, &s.Uncategorized)
	return s, err
}

func (r *TransactionRepo) query(ctx context.Context, q string, args ...interface{}) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// nullCategory stores blank or whitespace-only categories as NULL so the
// uncategorized clause and category.IsUncategorized see the same value.
func nullCategory(s string) sql.NullString {
	return nullString(strings.TrimSpace(s))
}

// uncategorizedClause must agree with category.IsUncategorized.
const uncategorizedClause = `(TRIM(COALESCE(t.manual_category, '')) = '' AND TRIM(COALESCE(t.ai_category, '')) = '' AND TRIM(COALESCE(t.origin_category, '')) = '')`

const orderNewestFirst = ` ORDER BY t.date DESC, t.created_at DESC, t.id`

const selectTransactions = `SELECT t.id, t.account_id, t.date, t.authorized_date, t.name, t.merchant_name,
 t.original_description, t.amount, t.currency, t.pending, t.transaction_type, t.location,
 t.payment_details, t.website, t.check_number, t.account_owner, t.origin_category, t.ai_category,
 t.ai_reason, t.manual_category, t.notes, t.tags, t.created_at, t.updated_at,
 a.institution_name, a.name
 FROM transactions t LEFT JOIN accounts a ON a.id = t.account_id`

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var date string
	var authorized, merchant, original, currency, txType, location, payment, website, check, owner,
		origin, ai, reason, manual, notes, tags, institution, accountName sql.NullString
	if err := row.Scan(&t.ID, &t.AccountID, &date, &authorized, &t.Name, &merchant, &original,
		&t.Amount, &currency, &t.Pending, &txType, &location, &payment, &website, &check, &owner,
		&origin, &ai, &reason, &manual, &notes, &tags, &t.CreatedAt, &t.UpdatedAt,
		&institution, &accountName); err != nil {
		return Transaction{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	t.Date = d
	if authorized.Valid && authorized.String != "" {
		ad, err := parseDate(authorized.String)
		if err != nil {
			return Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		t.AuthorizedDate = &ad
	}
	t.MerchantName = merchant.String
	t.OriginalDescription = original.String
	t.Currency = currency.String
	t.TransactionType = txType.String
	t.Location = location.String
	t.PaymentDetails = payment.String
	t.Website = website.String
	t.CheckNumber = check.String
	t.AccountOwner = owner.String
	t.OriginCategory = origin.String
	t.AICategory = ai.String
	t.AIReason = reason.String
	t.ManualCategory = manual.String
	t.Notes = notes.String
	t.Tags = splitTags(tags.String)
	t.Institution = institution.String
	t.AccountName = accountName.String
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func parseDate(s string) (time.Time, error) {
	// tolerate full timestamps written by other tools
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}

func joinTags(tags []string) string {
	var out []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
