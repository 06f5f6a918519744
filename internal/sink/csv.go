package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var csvHeader = []string{
	"timestamp", "channel", "message_id", "text", "tickers", "addresses",
	"sentiment", "sentiment_score", "hdrb_score", "confidence", "price_usd", "symbol",
}

// CSVSink appends processed messages to a local CSV file, writing the header
// when it creates the file.
type CSVSink struct {
	mu   sync.Mutex
	path string
}

// NewCSVSink prepares a sink at path, creating parent directories.
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("mkdir for csv sink: %w", err)
	}
	return &CSVSink{path: path}, nil
}

// AppendMessage writes one row, retrying once on failure.
func (c *CSVSink) AppendMessage(ctx context.Context, row MessageRow) error {
	return withRetry(ctx, "csv", func() error {
		return c.append(row)
	})
}

func (c *CSVSink) append(row MessageRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	needHeader := false
	if info, err := os.Stat(c.path); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		needHeader = true
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open csv sink: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}

	addresses := make([]string, len(row.Addresses))
	for i, a := range row.Addresses {
		addresses[i] = NormalizeAddress(a)
	}
	if err := w.Write([]string{
		row.Timestamp.UTC().Format(time.RFC3339),
		row.ChannelName,
		row.MessageID,
		row.Text,
		strings.Join(row.Tickers, " "),
		strings.Join(addresses, " "),
		row.Sentiment,
		fmt.Sprintf("%.4f", row.SentimentScore),
		fmt.Sprintf("%.2f", row.HDRBScore),
		fmt.Sprintf("%.4f", row.Confidence),
		FormatPrice(row.PriceUSD),
		NormalizeSymbol(row.Symbol),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
