package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// InstitutionRepo handles linked institutions.
type InstitutionRepo struct {
	db *sql.DB
}

func NewInstitutionRepo(db *sql.DB) *InstitutionRepo { return &InstitutionRepo{db: db} }

// Create inserts a new institution. It never overwrites an existing record.
func (r *InstitutionRepo) Create(ctx context.Context, name, credential string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO institutions(name, access_credential, created_at)
	VALUES(?, ?, ?)`, name, credential, time.Now().UTC())
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("institution %q: %w", name, ErrAlreadyExists)
		}
		return err
	}
	return nil
}

func (r *InstitutionRepo) Get(ctx context.Context, name string) (Institution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT name, access_credential, cursor, last_sync, created_at FROM institutions WHERE name = ?`, name)
	inst, err := scanInstitution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Institution{}, fmt.Errorf("institution %q: %w", name, ErrNotFound)
	}
	return inst, err
}

func (r *InstitutionRepo) GetAccessCredential(ctx context.Context, name string) (string, error) {
	var cred string
	err := r.db.QueryRowContext(ctx, `SELECT access_credential FROM institutions WHERE name = ?`, name).Scan(&cred)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("institution %q: %w", name, ErrNotFound)
	}
	return cred, err
}

// GetCursor returns the stored cursor, or "" when none has been saved.
func (r *InstitutionRepo) GetCursor(ctx context.Context, name string) (string, error) {
	var cursor sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT cursor FROM institutions WHERE name = ?`, name).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("institution %q: %w", name, ErrNotFound)
	}
	return cursor.String, err
}

// SetCursor stores cursor; an empty cursor resets the institution for a full resync.
func (r *InstitutionRepo) SetCursor(ctx context.Context, name, cursor string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE institutions SET cursor = ? WHERE name = ?`, nullString(cursor), name)
	return affectedOne(res, err, name)
}

func (r *InstitutionRepo) SetLastSync(ctx context.Context, name string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE institutions SET last_sync = ? WHERE name = ?`, at.UTC(), name)
	return affectedOne(res, err, name)
}

// UpdateCredential replaces the stored access credential, e.g. after re-linking.
func (r *InstitutionRepo) UpdateCredential(ctx context.Context, name, credential string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE institutions SET access_credential = ? WHERE name = ?`, credential, name)
	return affectedOne(res, err, name)
}

// Delete removes the institution and, by cascade, its accounts. Transactions are kept.
func (r *InstitutionRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM institutions WHERE name = ?`, name)
	return affectedOne(res, err, name)
}

// List returns institutions, most recently linked first.
func (r *InstitutionRepo) List(ctx context.Context) ([]Institution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, access_credential, cursor, last_sync, created_at FROM institutions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanInstitution(row scanner) (Institution, error) {
	var inst Institution
	var cursor sql.NullString
	var last sql.NullTime
	if err := row.Scan(&inst.Name, &inst.AccessCredential, &cursor, &last, &inst.CreatedAt); err != nil {
		return Institution{}, err
	}
	inst.Cursor = cursor.String
	if last.Valid {
		t := last.Time.UTC()
		inst.LastSync = &t
	}
	return inst, nil
}

func affectedOne(res sql.Result, err error, name string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("institution %q: %w", name, ErrNotFound)
	}
	return nil
}
