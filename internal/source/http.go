package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/botfolio/portfolio-engine/internal/model"
	"github.com/botfolio/portfolio-engine/internal/validate"
)

// HTTPSource fetches trade batches from a bot's API endpoint. The endpoint
// must return a JSON array of trade payloads. Requests are bounded by the
// client timeout and the caller's ctx; a transport error, non-2xx status,
// or undecodable body all fail the fetch.
type HTTPSource struct {
	client *http.Client
}

// NewHTTPSource creates an HTTP source with the given per-request timeout.
func NewHTTPSource(timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) FetchTrades(ctx context.Context, bot model.Bot) ([]validate.RawTrade, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bot.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("source: bad endpoint for bot %s: %w", bot.ID, err)
	}
	req.Header.Set("Accept", "application/json")
	if bot.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+bot.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetch from bot %s: %w", bot.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("source: bot %s returned status %d", bot.ID, resp.StatusCode)
	}

	var trades []validate.RawTrade
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&trades); err != nil {
		return nil, fmt.Errorf("source: decode trades from bot %s: %w", bot.ID, err)
	}
	return trades, nil
}
