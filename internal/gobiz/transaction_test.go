package gobiz

import (
	"encoding/json"
	"testing"
)

func TestNormalize_Amount(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		raw  string
		want int64
	}{
		{"gross_amount minor units", `{"metadata":{"transaction":{"gross_amount":150000}}}`, 1500},
		{"amount fallback", `{"metadata":{"transaction":{"amount":25000}}}`, 250},
		{"total_amount fallback", `{"metadata":{"transaction":{"total_amount":9900}}}`, 99},
		{"gopay_amount fallback", `{"metadata":{"transaction":{"gopay_amount":10000}}}`, 100},
		{"nested gopay amount", `{"metadata":{"transaction":{"gopay":{"amount":5000}}}}`, 50},
		{"nested gopay gross", `{"metadata":{"transaction":{"gopay":{"gross_amount":7500}}}}`, 75},
		{"details amount", `{"metadata":{"transaction":{"details":{"amount":1200}}}}`, 12},
		{"details gross", `{"metadata":{"transaction":{"details":{"gross_amount":300}}}}`, 3},
		{"gross wins over amount", `{"metadata":{"transaction":{"gross_amount":150000,"amount":1}}}`, 1500},
		{"numeric string", `{"metadata":{"transaction":{"gross_amount":"250000"}}}`, 2500},
		{"rounds half up", `{"metadata":{"transaction":{"gross_amount":150050}}}`, 1501},
		{"non-numeric string", `{"metadata":{"transaction":{"gross_amount":"free"}}}`, 0},
		{"missing entirely", `{"metadata":{"transaction":{"status":"settled"}}}`, 0},
		{"no metadata", `{"id":"x"}`, 0},
		{"not even json", `totally broken`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := Normalize(json.RawMessage(tc.raw))
			if tx.Amount != tc.want {
				t.Fatalf("amount=%d, want %d", tx.Amount, tc.want)
			}
		})
	}
}

func TestNormalize_IdentityFallbacks(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"top-level id", `{"id":"J-1","_id":"M-1"}`, "J-1"},
		{"_id fallback", `{"_id":"M-1"}`, "M-1"},
		{"order_id fallback", `{"metadata":{"transaction":{"order_id":"O-1"}}}`, "O-1"},
		{"transaction_id fallback", `{"metadata":{"transaction":{"transaction_id":"T-1"}}}`, "T-1"},
		{"numeric id stringified", `{"id":12345}`, "12345"},
		{"nothing", `{}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(json.RawMessage(tc.raw)).ID; got != tc.want {
				t.Fatalf("id=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalize_TimeStatusPaymentType(t *testing.T) {
	t.Parallel()

	full := `{
		"id": "J-9",
		"time": "2026-08-29T09:00:00+07:00",
		"created_at": "2026-08-29T09:00:05+07:00",
		"metadata": {"transaction": {
			"transaction_time": "2026-08-29T08:59:58+07:00",
			"status": "SETTLED",
			"payment_type": "gopay",
			"gross_amount": 150000
		}}
	}`
	tx := Normalize(json.RawMessage(full))
	if tx.Time != "2026-08-29T08:59:58+07:00" {
		t.Fatalf("time=%q, want transaction_time to win", tx.Time)
	}
	if tx.Status != "SETTLED" || tx.PaymentType != "gopay" || tx.Amount != 1500 {
		t.Fatalf("tx=%+v", tx)
	}

	sparse := Normalize(json.RawMessage(`{"time":"2026-08-29T10:00:00+07:00","status":"PENDING"}`))
	if sparse.Time != "2026-08-29T10:00:00+07:00" || sparse.Status != "PENDING" {
		t.Fatalf("sparse=%+v", sparse)
	}

	created := Normalize(json.RawMessage(`{"created_at":"2026-08-28T00:00:00+07:00"}`))
	if created.Time != "2026-08-28T00:00:00+07:00" {
		t.Fatalf("created_at fallback: %+v", created)
	}

	typeID := Normalize(json.RawMessage(`{"metadata":{"transaction":{"payment_type_id":"QRIS"}}}`))
	if typeID.PaymentType != "QRIS" {
		t.Fatalf("payment_type_id fallback: %+v", typeID)
	}
}

func TestNormalize_RetainsRaw(t *testing.T) {
	t.Parallel()
	raw := json.RawMessage(`{"id":"J-1","future_field":{"nested":true}}`)
	tx := Normalize(raw)
	if string(tx.Raw) != string(raw) {
		t.Fatalf("raw not retained")
	}
}
