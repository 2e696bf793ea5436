package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// APIRecord is the stored shape of one fetched payload under the "apis" key.
type APIRecord struct {
	URL       string          `json:"url"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Fetcher pulls a payload from an external URL into a chat's memory so later
// questions can be answered against it.
type Fetcher struct {
	client *resty.Client
	store  *Store
}

func NewFetcher(store *Store, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: resty.New().SetTimeout(timeout),
		store:  store,
	}
}

// FetchAPI GETs the URL and stores the response under a synthetic key in the
// "apis" map. Non-JSON responses are stored as a JSON string so the entry
// still round-trips.
func (f *Fetcher) FetchAPI(ctx context.Context, chatId uuid.UUID, url string) (string, error) {
	res, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("fetching %s: status %d", url, res.StatusCode())
	}

	body := res.Body()
	payload := json.RawMessage(body)
	if !json.Valid(body) {
		encoded, err := json.Marshal(string(body))
		if err != nil {
			return "", fmt.Errorf("encoding payload from %s: %w", url, err)
		}
		payload = encoded
	}

	record := APIRecord{URL: url, FetchedAt: time.Now().UTC(), Payload: payload}
	return f.store.AddAPIRecord(ctx, chatId, record)
}
