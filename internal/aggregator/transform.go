package aggregator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jask/ledgersync/internal/category"
	"github.com/jask/ledgersync/internal/database/repository"
)

// Transform maps a provider record onto the stored transaction shape.
// Amounts keep the provider's sign: positive is money out.
func Transform(raw RawTransaction, institution string) repository.Transaction {
	currency := raw.IsoCurrencyCode
	if currency == "" {
		currency = raw.UnofficialCurrency
	}
	if currency == "" {
		currency = "USD"
	}
	return repository.Transaction{
		ID:                  raw.TransactionID,
		AccountID:           raw.AccountID,
		Date:                raw.Date,
		AuthorizedDate:      raw.AuthorizedDate,
		Name:                raw.Name,
		MerchantName:        raw.MerchantName,
		OriginalDescription: raw.OriginalDescription,
		Amount:              raw.Amount,
		Currency:            currency,
		Pending:             raw.Pending,
		TransactionType:     raw.PaymentChannel,
		Location:            FlattenLocation(raw.Location),
		PaymentDetails:      FlattenPaymentMeta(raw.PaymentMeta),
		Website:             raw.Website,
		CheckNumber:         raw.CheckNumber,
		AccountOwner:        raw.AccountOwner,
		OriginCategory:      OriginOf(raw).Encode(),
		Institution:         institution,
	}
}

// TransformAll applies Transform to every record.
func TransformAll(raws []RawTransaction, institution string) []repository.Transaction {
	out := make([]repository.Transaction, 0, len(raws))
	for _, r := range raws {
		out = append(out, Transform(r, institution))
	}
	return out
}

// OriginOf collects the provider's category fields.
func OriginOf(raw RawTransaction) category.Origin {
	o := category.Origin{
		Primary:    raw.PFCPrimary,
		Detailed:   raw.PFCDetailed,
		Confidence: raw.PFCConfidence,
	}
	if len(raw.LegacyCategory) > 0 {
		o.Legacy = raw.LegacyCategory[0]
		o.LegacyDetailed = strings.Join(raw.LegacyCategory, " > ")
	}
	return o
}

// FlattenLocation joins the populated location parts with ", ".
func FlattenLocation(l *RawLocation) string {
	if l == nil {
		return ""
	}
	var parts []string
	for _, p := range []string{l.Address, l.City, l.Region, l.PostalCode, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if l.Lat != nil && l.Lon != nil {
		parts = append(parts, fmt.Sprintf("lat %s lon %s", formatCoord(*l.Lat), formatCoord(*l.Lon)))
	}
	if l.StoreNumber != "" {
		parts = append(parts, "Store #"+l.StoreNumber)
	}
	return strings.Join(parts, ", ")
}

// FlattenPaymentMeta renders populated payment fields as "key: value" pairs.
func FlattenPaymentMeta(m *RawPaymentMeta) string {
	if m == nil {
		return ""
	}
	fields := []struct{ key, val string }{
		{"reference_number", m.ReferenceNumber},
		{"ppd_id", m.PPDID},
		{"payee", m.Payee},
		{"by_order_of", m.ByOrderOf},
		{"payer", m.Payer},
		{"payment_method", m.PaymentMethod},
		{"payment_processor", m.PaymentProcessor},
		{"reason", m.Reason},
	}
	var parts []string
	for _, f := range fields {
		if v := strings.TrimSpace(f.val); v != "" {
			parts = append(parts, f.key+": "+v)
		}
	}
	return strings.Join(parts, ", ")
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
