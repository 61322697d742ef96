package gobiz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMerchantID_AdoptsFirstHit(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/merchants/search" {
			t.Errorf("path=%q", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hits": []map[string]any{
				{"id": "G-1", "name": "Warung Satu"},
				{"id": "G-2", "name": "Warung Dua"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	id, err := c.MerchantID(context.Background(), acc)
	if err != nil {
		t.Fatalf("MerchantID: %v", err)
	}
	if id != "G-1" || acc.MerchantID != "G-1" || acc.MerchantName != "Warung Satu" {
		t.Fatalf("adopted %q / %+v, want first hit", id, acc)
	}
}

func TestMerchantID_NoHits(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"hits": []any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	if _, err := c.MerchantID(context.Background(), acc); !errors.Is(err, ErrMerchantNotFound) {
		t.Fatalf("err=%v, want ErrMerchantNotFound", err)
	}
}

func TestTransactions_QueryAndProjection(t *testing.T) {
	t.Parallel()
	var journalReq map[string]any
	var accept string
	mux := http.NewServeMux()
	mux.HandleFunc("/journals/search", func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&journalReq); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hits": []map[string]any{
				{"id": "J-1", "metadata": map[string]any{"transaction": map[string]any{"gross_amount": 150000, "status": "SETTLED"}}},
				{"id": "J-2", "metadata": map[string]any{"transaction": map[string]any{"amount": 5000}}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)
	acc.MerchantID = "G-1" // cached: no merchant search round trip

	txs, err := c.Transactions(context.Background(), acc, "2026-08-29", 25)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len=%d, want 2", len(txs))
	}
	if txs[0].ID != "J-1" || txs[0].Amount != 1500 || txs[0].Status != "SETTLED" {
		t.Fatalf("tx0=%+v", txs[0])
	}
	if txs[1].Amount != 50 {
		t.Fatalf("tx1=%+v", txs[1])
	}

	if !strings.Contains(accept, "vnd.journal.v1+json") {
		t.Fatalf("Accept=%q", accept)
	}
	if journalReq["size"] != float64(25) {
		t.Fatalf("size=%v", journalReq["size"])
	}
	blob, _ := json.Marshal(journalReq)
	for _, want := range []string{
		`"metadata.transaction.merchant_id"`,
		`"G-1"`,
		`"2026-08-29T00:00:00+07:00"`,
		`"2026-08-29T23:59:59+07:00"`,
		`"order":"desc"`,
		`"transaction_share"`,
	} {
		if !strings.Contains(string(blob), want) {
			t.Fatalf("journal query missing %s: %s", want, blob)
		}
	}
}

func TestTransactions_ResolvesMerchantLazily(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/merchants/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"hits": []map[string]any{{"id": "G-9", "name": "Warung Sembilan"}}})
	})
	mux.HandleFunc("/journals/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"hits": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	txs, err := c.Transactions(context.Background(), acc, "2026-08-29", 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("len=%d, want 0", len(txs))
	}
	if acc.MerchantID != "G-9" || acc.MerchantName != "Warung Sembilan" {
		t.Fatalf("merchant not adopted: %+v", acc)
	}
}
