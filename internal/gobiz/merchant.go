package gobiz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
)

// ErrMerchantNotFound indicates the merchant search returned no usable hit.
var ErrMerchantNotFound = errors.New("merchant not found")

// journalAccept requests the versioned journal media type alongside plain JSON.
const journalAccept = "application/json, application/vnd.journal.v1+json"

type merchantHit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MerchantID resolves and caches the merchant identity on the record,
// adopting the first search hit. ErrMerchantNotFound when neither the record
// nor the search yields an id.
func (c *Client) MerchantID(ctx context.Context, acc *model.Account) (string, error) {
	raw, err := c.Call(ctx, acc, http.MethodPost, "/v1/merchants/search", map[string]any{
		"from":    0,
		"to":      1,
		"_source": []string{"id", "name"},
	}, nil)
	if err != nil {
		return "", err
	}

	var out struct {
		Hits []merchantHit `json:"hits"`
	}
	if err := json.Unmarshal(raw, &out); err == nil && len(out.Hits) > 0 && out.Hits[0].ID != "" {
		acc.MerchantID = out.Hits[0].ID
		if out.Hits[0].Name != "" {
			acc.MerchantName = out.Hits[0].Name
		}
	}

	if acc.MerchantID == "" {
		return "", ErrMerchantNotFound
	}
	return acc.MerchantID, nil
}

// Transactions fetches the merchant's ledger entries for one local day
// (Asia/Jakarta) and projects them into normalized transactions, newest
// first. dateYMD is "2006-01-02"; size caps the page.
func (c *Client) Transactions(ctx context.Context, acc *model.Account, dateYMD string, size int) ([]model.Transaction, error) {
	if size <= 0 {
		size = 50
	}
	fromISO := dateYMD + "T00:00:00+07:00"
	toISO := dateYMD + "T23:59:59+07:00"

	merchantID := acc.MerchantID
	if merchantID == "" {
		var err error
		merchantID, err = c.MerchantID(ctx, acc)
		if err != nil {
			return nil, err
		}
	}

	extra := http.Header{}
	extra.Set("Accept", journalAccept)

	raw, err := c.Call(ctx, acc, http.MethodPost, "/journals/search", map[string]any{
		"from": 0,
		"size": size,
		"sort": map[string]any{"time": map[string]any{"order": "desc"}},
		"included_categories": map[string]any{
			"incoming": []string{"transaction_share", "action"},
		},
		"query": []map[string]any{
			{
				"op": "and",
				"clauses": []map[string]any{
					{"field": "metadata.transaction.merchant_id", "op": "equal", "value": merchantID},
					{"field": "metadata.transaction.transaction_time", "op": "gte", "value": fromISO},
					{"field": "metadata.transaction.transaction_time", "op": "lte", "value": toISO},
				},
			},
		},
	}, extra)
	if err != nil {
		return nil, err
	}

	var out struct {
		Hits []json.RawMessage `json:"hits"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	txs := make([]model.Transaction, 0, len(out.Hits))
	for _, hit := range out.Hits {
		txs = append(txs, Normalize(hit))
	}
	return txs, nil
}
