package gobiz

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
)

// fieldPath addresses a nested field in an upstream journal entry. The
// fallback chains below are explicit ordered lists so the priority order
// stays visible and testable.
type fieldPath []string

var amountPaths = []fieldPath{
	{"metadata", "transaction", "gross_amount"},
	{"metadata", "transaction", "amount"},
	{"metadata", "transaction", "total_amount"},
	{"metadata", "transaction", "gopay_amount"},
	{"metadata", "transaction", "gopay", "amount"},
	{"metadata", "transaction", "gopay", "gross_amount"},
	{"metadata", "transaction", "details", "amount"},
	{"metadata", "transaction", "details", "gross_amount"},
}

var idPaths = []fieldPath{
	{"id"},
	{"_id"},
	{"metadata", "transaction", "order_id"},
	{"metadata", "transaction", "transaction_id"},
}

var timePaths = []fieldPath{
	{"metadata", "transaction", "transaction_time"},
	{"time"},
	{"created_at"},
}

var statusPaths = []fieldPath{
	{"metadata", "transaction", "status"},
	{"status"},
}

var paymentTypePaths = []fieldPath{
	{"metadata", "transaction", "payment_type"},
	{"metadata", "transaction", "payment_type_id"},
}

// Normalize projects one upstream journal entry into a Transaction. It is
// pure and total: unrecognizable amounts become 0, missing identity and
// timestamp stay empty, and the raw entry is retained.
func Normalize(raw json.RawMessage) model.Transaction {
	var entry map[string]any
	_ = json.Unmarshal(raw, &entry)

	tx := model.Transaction{
		ID:          firstString(entry, idPaths),
		Time:        firstString(entry, timePaths),
		Status:      firstString(entry, statusPaths),
		PaymentType: firstString(entry, paymentTypePaths),
		Raw:         raw,
	}
	if minor, ok := firstNumber(entry, amountPaths); ok {
		tx.Amount = majorUnits(minor)
	}
	return tx
}

// majorUnits converts a minor-currency-unit value (sen) to rounded major units.
func majorUnits(minor float64) int64 {
	return int64(math.Round(minor / 100))
}

func lookup(entry map[string]any, path fieldPath) (any, bool) {
	cur := any(entry)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// firstString returns the first non-empty string-like value along the paths.
func firstString(entry map[string]any, paths []fieldPath) string {
	for _, p := range paths {
		v, ok := lookup(entry, p)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

// firstNumber returns the first numeric value along the paths, accepting
// JSON numbers and numeric strings.
func firstNumber(entry map[string]any, paths []fieldPath) (float64, bool) {
	for _, p := range paths {
		v, ok := lookup(entry, p)
		if !ok {
			continue
		}
		if n, ok := toNumber(v); ok {
			return n, true
		}
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
