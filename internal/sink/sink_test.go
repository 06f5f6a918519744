package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabc123def", NormalizeAddress("0xABC123def"))
	assert.Equal(t, "0xabc", NormalizeAddress("'0xABC"))
	assert.Equal(t, "0xabc", NormalizeAddress("  0xAbC  "))
	// Solana addresses keep their case.
	assert.Equal(t, "DezXAZ8z7Pn", NormalizeAddress("DezXAZ8z7Pn"))
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "PEPE", NormalizeSymbol(" pepe "))
	assert.Equal(t, "WETH", NormalizeSymbol("'weth"))
}

func TestFormatPricePrecisionBands(t *testing.T) {
	assert.Equal(t, "0.000000000123", FormatPrice(1.23e-10))
	assert.Equal(t, "0.00012300", FormatPrice(0.000123))
	assert.Equal(t, "1.500000", FormatPrice(1.5))
	assert.Equal(t, "0.010000", FormatPrice(0.01))
	assert.Equal(t, "0.000000", FormatPrice(0))
}

func TestCompositeKey(t *testing.T) {
	assert.Equal(t, "0xabc|msg-1", CompositeKey("0xABC", "msg-1"))
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "messages.csv")
	s, err := NewCSVSink(path)
	require.NoError(t, err)

	row := MessageRow{
		Timestamp:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		ChannelName: "alpha_calls",
		MessageID:   "m1",
		Text:        "new gem 0xABC",
		Tickers:     []string{"PEPE"},
		Addresses:   []string{"0xABC"},
		Sentiment:   "positive",
		PriceUSD:    0.000123,
		Symbol:      "pepe",
	}
	require.NoError(t, s.AppendMessage(context.Background(), row))
	row.MessageID = "m2"
	require.NoError(t, s.AppendMessage(context.Background(), row))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two rows")
	assert.Equal(t, "timestamp", records[0][0])
	assert.Equal(t, "m1", records[1][2])
	assert.Equal(t, "0xabc", records[1][5], "addresses normalized in output")
	assert.Equal(t, "PEPE", records[1][11], "symbol uppercased")
	assert.Equal(t, "0.00012300", records[1][10])
}

func TestWithRetrySucceedsSecondTry(t *testing.T) {
	old := retryDelay
	retryDelay = time.Millisecond
	defer func() { retryDelay = old }()

	attempts := 0
	err := withRetry(context.Background(), "test", func() error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryGivesUpAfterOneRetry(t *testing.T) {
	old := retryDelay
	retryDelay = time.Millisecond
	defer func() { retryDelay = old }()

	attempts := 0
	err := withRetry(context.Background(), "test", func() error {
		attempts++
		return errors.New("persistent")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, "test", func() error { return errors.New("fail") })
	assert.ErrorIs(t, err, context.Canceled)
}
