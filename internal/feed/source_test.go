package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depin-engine-backend/config"
)

func TestHTTPSourceParsesInteger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price": 50000, "round_id": 7, "updated_at": 1700000000}`))
	}))
	defer server.Close()

	src := NewHTTPSource(config.FeedSource{
		Name:     "exchange-a",
		URL:      server.URL,
		Headers:  map[string]string{"Authorization": "token-123"},
		Decimals: 2,
	}, "", server.Client())

	rd, err := src.LatestRoundData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(50000), rd.Price)
	assert.Equal(t, int64(7), rd.RoundID)
	assert.Equal(t, int64(1700000000), rd.UpdatedAt)
	assert.Equal(t, 2, src.Decimals())
}

func TestHTTPSourceScalesDecimalPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"last": 512.34}`))
	}))
	defer server.Close()

	src := NewHTTPSource(config.FeedSource{
		Name:       "exchange-b",
		URL:        server.URL,
		PriceField: "last",
		Decimals:   2,
	}, "", server.Client())

	rd, err := src.LatestRoundData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(51234), rd.Price)
}

func TestHTTPSourceErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		src := NewHTTPSource(config.FeedSource{Name: "bad", URL: server.URL}, "", server.Client())
		_, err := src.LatestRoundData(context.Background())
		assert.ErrorContains(t, err, "non-200")
	})

	t.Run("missing price field", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"bid": 1}`))
		}))
		defer server.Close()

		src := NewHTTPSource(config.FeedSource{Name: "sparse", URL: server.URL}, "", server.Client())
		_, err := src.LatestRoundData(context.Background())
		assert.ErrorContains(t, err, "missing field")
	})
}
