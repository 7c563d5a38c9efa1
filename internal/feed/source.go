package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"depin-engine-backend/config"
)

// RoundData is the price-feed collaborator's answer, mirroring the
// usual aggregator round shape. Only Price is consumed by the oracle
// integration.
type RoundData struct {
	RoundID         int64
	Price           int64
	StartedAt       int64
	UpdatedAt       int64
	AnsweredInRound int64
}

// Source is one external price feed. Decimals tells the integration
// how to scale Price to the canonical decimals before aggregating.
type Source interface {
	Name() string
	Decimals() int
	LatestRoundData(ctx context.Context) (RoundData, error)
}

// HTTPSource polls a JSON endpoint for its latest price.
type HTTPSource struct {
	name     string
	url      string
	headers  map[string]string
	field    string
	decimals int
	client   *http.Client
}

// NewHTTPSource builds a source from config. A nil client gets a
// default with a 30 second timeout, honoring the configured proxy.
func NewHTTPSource(cfg config.FeedSource, proxy string, client *http.Client) *HTTPSource {
	if client == nil {
		var transport http.RoundTripper = &http.Transport{}
		if proxy != "" {
			if proxyURL, err := url.Parse(proxy); err == nil {
				transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
			}
		}
		client = &http.Client{Transport: transport, Timeout: 30 * time.Second}
	}
	field := cfg.PriceField
	if field == "" {
		field = "price"
	}
	return &HTTPSource{
		name:     cfg.Name,
		url:      cfg.URL,
		headers:  cfg.Headers,
		field:    field,
		decimals: cfg.Decimals,
		client:   client,
	}
}

// Name identifies the source in logs and events.
func (s *HTTPSource) Name() string { return s.name }

// Decimals is the fixed-point scale of this source's prices.
func (s *HTTPSource) Decimals() int { return s.decimals }

// LatestRoundData fetches and decodes the endpoint's current price.
func (s *HTTPSource) LatestRoundData(ctx context.Context) (RoundData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return RoundData{}, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return RoundData{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RoundData{}, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RoundData{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var fields map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return RoundData{}, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}

	raw, ok := fields[s.field]
	if !ok {
		return RoundData{}, fmt.Errorf("feed response is missing field %q", s.field)
	}
	price, err := numberToPrice(raw, s.decimals)
	if err != nil {
		return RoundData{}, err
	}

	rd := RoundData{Price: price}
	if v, ok := fields["round_id"]; ok {
		rd.RoundID, _ = v.Int64()
		rd.AnsweredInRound = rd.RoundID
	}
	if v, ok := fields["updated_at"]; ok {
		rd.UpdatedAt, _ = v.Int64()
	}
	return rd, nil
}

// numberToPrice accepts either an integer already expressed in the
// source's decimals, or a decimal number to be scaled up.
func numberToPrice(n json.Number, decimals int) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("feed price %q is not numeric: %w", n.String(), err)
	}
	return int64(math.Round(f * math.Pow10(decimals))), nil
}
