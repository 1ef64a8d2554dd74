package restapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-dashboard/internal/metrics"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m := metrics.New()
	return NewClient(srv.URL+"/", 0, m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func TestPriceDecodesStringAndNumber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/price", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BTCUSDT" {
			_, _ = io.WriteString(w, `{"price":"64250.12"}`)
			return
		}
		_, _ = io.WriteString(w, `{"price":3120.5}`)
	})
	c, m := newTestClient(t, mux)

	p, err := c.Price(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("64250.12")), "got %s", p)

	p, err = c.Price(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "3120.5", p.String())

	assert.Equal(t, 1, testutil.CollectAndCount(m.RESTRequestTime))
}

func TestPriceMissing(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	_, err := c.Price(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestGridLevels(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/grid-trade", r.URL.Path)
		_, _ = io.WriteString(w, `{"gridTrade":[
			{"triggered":true,"status":"filled","buy":{"price":"100.5","quantity":"0.1"},"sell":{"price":"101","quantity":"0.1"}},
			{"triggered":false,"status":"","buy":{"price":99,"quantity":0.2},"sell":{"price":100,"quantity":0.2}}
		]}`)
	}))
	levels, err := c.Grid(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.True(t, levels[0].Triggered)
	assert.Equal(t, "100.5", levels[0].Buy.Price.String())
	assert.Equal(t, "0.2", levels[1].Sell.Quantity.String())
}

func TestGridEmpty(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	levels, err := c.Grid(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.NotNil(t, levels)
	assert.Empty(t, levels)
}

func TestSaveGridResetsTriggerState(t *testing.T) {
	var got struct {
		Symbol string      `json:"symbol"`
		Levels []GridLevel `json:"levels"`
	}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	err := c.SaveGrid(context.Background(), "ethusdt", []GridLevel{{
		Triggered: true,
		Status:    "filled",
		Buy:       OrderSide{Price: decimal.NewFromInt(3000), Quantity: decimal.RequireFromString("0.5")},
		Sell:      OrderSide{Price: decimal.NewFromInt(3100), Quantity: decimal.RequireFromString("0.5")},
	}})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.Symbol)
	require.Len(t, got.Levels, 1)
	assert.False(t, got.Levels[0].Triggered)
	assert.Equal(t, "", got.Levels[0].Status)
	assert.Equal(t, "3100", got.Levels[0].Sell.Price.String())
}

func TestStartStopGrid(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	}))
	require.NoError(t, c.StartGrid(context.Background(), "btcusdt"))
	require.NoError(t, c.StopGrid(context.Background(), "btcusdt"))
	assert.Equal(t, []string{
		"POST /api/grid-trade/start?symbol=BTCUSDT",
		"POST /api/grid-trade/stop?symbol=BTCUSDT",
	}, paths)
}

func TestErrorStatusCarriesDetail(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"grid not found"}`)
	}))
	err := c.StartGrid(context.Background(), "XRPUSDT")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "grid not found")
}

func TestLogs(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/logs":
			_, _ = io.WriteString(w, `{"data":{"rows":[{"action":"buy","price":"100","timestamp":"2025-01-01T00:00:00Z"}]}}`)
		case "/api/logs/export":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = io.WriteString(w, "action,price\nbuy,100\n")
		}
	}))
	rows, err := c.Logs(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "buy", rows[0].Action)

	body, ct, err := c.ExportLogs(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", ct)
	assert.Equal(t, "action,price\nbuy,100\n", string(body))
}

func TestArchiveDefaults(t *testing.T) {
	var q ArchiveQuery
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		_, _ = io.WriteString(w, `{"data":{"rows":[{"symbol":"BTCUSDT","profit":"12.5","profitPercentage":"1.25","trades":4}],"stats":{"profit":"12.5","trades":4}}}`)
	}))
	a, err := c.Archive(context.Background(), ArchiveQuery{Symbol: "btcusdt"})
	require.NoError(t, err)
	assert.Equal(t, ArchiveQuery{Type: "symbol", Symbol: "BTCUSDT", Page: 1, Limit: 50}, q)
	require.Len(t, a.Rows, 1)
	assert.Equal(t, 4, a.Stats.Trades)
	assert.Equal(t, "12.5", a.Rows[0].Profit.String())
}

func TestArchiveMissingData(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	a, err := c.Archive(context.Background(), ArchiveQuery{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.NotNil(t, a.Rows)
	assert.Empty(t, a.Rows)
}

func TestMonitoring(t *testing.T) {
	var posted string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posted = r.URL.RawQuery
			return
		}
		_, _ = io.WriteString(w, `{"symbols":["BTCUSDT","SOLUSDT"]}`)
	}))
	syms, err := c.Monitoring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, syms)

	require.NoError(t, c.SetMonitoring(context.Background(), "solusdt", false))
	assert.Equal(t, "active=false&symbol=SOLUSDT", posted)
}

func TestCandles(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/candles", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		if r.URL.Query().Get("interval") == "5m" {
			_, _ = io.WriteString(w, `{"candles":[{"t":1700000300000,"o":"2","h":"3","l":"1","c":"2.5"}]}`)
			return
		}
		assert.Equal(t, DefaultCandleInterval, r.URL.Query().Get("interval"))
		_, _ = io.WriteString(w, `[
			{"t":1700000000000,"o":"100.1","h":"101","l":"99.5","c":"100.7","v":"12.5"},
			{"t":1700000060000,"o":100.7,"h":102,"l":100,"c":101.9}
		]`)
	}))

	candles, err := c.Candles(context.Background(), "btcusdt", "")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000000), candles[0].T)
	assert.Equal(t, "100.7", candles[0].C.String())
	assert.Equal(t, "12.5", candles[0].V.String())
	assert.True(t, candles[1].V.IsZero())

	candles, err = c.Candles(context.Background(), "BTCUSDT", "5m")
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, "2.5", candles[0].C.String())
}

func TestCandlesErrorBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"Failed to load candles: connection refused"}`)
	}))
	_, err := c.Candles(context.Background(), "BTCUSDT", "1m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to load candles")
	assert.False(t, IsNotFound(err))
}
