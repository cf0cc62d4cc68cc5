package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Upsert creates or updates an account in place and marks it active.
func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, institution_name, name, official_name, type, subtype, mask,
	 balance_current, balance_available, balance_limit, currency, owner, active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 institution_name=excluded.institution_name,
	 name=excluded.name,
	 official_name=excluded.official_name,
	 type=excluded.type,
	 subtype=excluded.subtype,
	 mask=excluded.mask,
	 balance_current=excluded.balance_current,
	 balance_available=excluded.balance_available,
	 balance_limit=excluded.balance_limit,
	 currency=excluded.currency,
	 owner=COALESCE(excluded.owner, accounts.owner),
	 active=1,
	 updated_at=excluded.updated_at;
	`, a.ID, nullString(a.InstitutionName), a.Name, nullString(a.OfficialName), nullString(a.Type),
		nullString(a.Subtype), nullString(a.Mask), a.BalanceCurrent, a.BalanceAvailable, a.BalanceLimit,
		nullString(a.Currency), nullString(a.Owner), now, now)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return Account{}, ErrNotFound
	}
	return a, err
}

// List returns accounts ordered by institution then name. Inactive accounts are included only when asked.
func (r *AccountRepo) List(ctx context.Context, includeInactive bool) ([]Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeInactive {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY COALESCE(institution_name, ''), name`
	return r.query(ctx, q)
}

func (r *AccountRepo) ListByInstitution(ctx context.Context, institution string) ([]Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE institution_name = ? ORDER BY name`, institution)
}

// DeactivateMissing soft-deletes accounts of institution whose ids are not in keep.
func (r *AccountRepo) DeactivateMissing(ctx context.Context, institution string, keep []string) (int, error) {
	q := `UPDATE accounts SET active = 0, updated_at = ? WHERE institution_name = ? AND active = 1`
	args := []interface{}{time.Now().UTC(), institution}
	if len(keep) > 0 {
		q += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *AccountRepo) query(ctx context.Context, q string, args ...interface{}) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const accountColumns = `id, institution_name, name, official_name, type, subtype, mask,
 balance_current, balance_available, balance_limit, currency, owner, active, created_at, updated_at`

func scanAccount(row scanner) (Account, error) {
	var a Account
	var inst, official, typ, subtype, mask, currency, owner sql.NullString
	var cur, avail, limit sql.NullFloat64
	if err := row.Scan(&a.ID, &inst, &a.Name, &official, &typ, &subtype, &mask,
		&cur, &avail, &limit, &currency, &owner, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	a.InstitutionName = inst.String
	a.OfficialName = official.String
	a.Type = typ.String
	a.Subtype = subtype.String
	a.Mask = mask.String
	a.Currency = currency.String
	a.Owner = owner.String
	a.BalanceCurrent = nullFloat(cur)
	a.BalanceAvailable = nullFloat(avail)
	a.BalanceLimit = nullFloat(limit)
	return a, nil
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
