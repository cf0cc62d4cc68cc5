package repository

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
)

// FindDuplicates returns stored transactions that look like t under a different id:
// amount within DuplicateTolerance, date within DuplicateWindowDays, and a similar
// name or merchant.
func (r *TransactionRepo) FindDuplicates(ctx context.Context, t Transaction) ([]Transaction, error) {
	candidates, err := r.query(ctx, selectTransactions+`
	WHERE t.id != ?
	  AND ABS(t.amount - ?) < ?
	  AND ABS(julianday(t.date) - julianday(?)) <= ?
	ORDER BY ABS(julianday(t.date) - julianday(?)) ASC, t.id`,
		t.ID, t.Amount, r.policy.DuplicateTolerance, formatDate(t.Date),
		r.policy.DuplicateWindowDays, formatDate(t.Date))
	if err != nil {
		return nil, err
	}
	var out []Transaction
	for _, c := range candidates {
		if r.similarDescription(t, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *TransactionRepo) similarDescription(a, b Transaction) bool {
	for _, x := range []string{a.Name, a.MerchantName} {
		for _, y := range []string{b.Name, b.MerchantName} {
			if r.similar(x, y) {
				return true
			}
		}
	}
	return false
}

func (r *TransactionRepo) similar(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	maxlen := len(a)
	if len(b) > maxlen {
		maxlen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(dist)/float64(maxlen) < r.policy.DuplicateMaxDistance
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
