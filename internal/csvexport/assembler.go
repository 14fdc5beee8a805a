// Package csvexport turns enriched products into a gzip-compressed CSV file.
package csvexport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/data-power-io/commerce-export/internal/commerce"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
)

// ErrNoColumns is returned when the field order is empty.
var ErrNoColumns = errors.New("csv export needs at least one column")

// Options configures serialization and compression.
type Options struct {
	// ChunkSize is the number of rows serialized per flush (default: 100).
	ChunkSize int

	// Level is the gzip level 0-9 (default: 6). Use NoCompression for 0.
	Level int

	// NoCompression forces level 0, since a zero Level means the default.
	NoCompression bool

	// MediaBaseURL prefixes relative media gallery file paths.
	MediaBaseURL string

	// ListSeparator joins multi-valued cells (default: "|").
	ListSeparator string
}

// Stats describes the compression of one file.
type Stats struct {
	OriginalSize   int64   `json:"originalSize"`
	CompressedSize int64   `json:"compressedSize"`
	SavingsPercent float64 `json:"savingsPercent"`
}

// Result is an assembled file.
type Result struct {
	// Bytes is the gzip-compressed CSV.
	Bytes []byte

	// CSVSize is the uncompressed size in bytes.
	CSVSize int64

	Rows  int
	Stats *Stats
}

// ValidateFields reports the first field with no column renderer.
func ValidateFields(fieldOrder []string) error {
	if len(fieldOrder) == 0 {
		return ErrNoColumns
	}
	for _, name := range fieldOrder {
		if _, ok := lookupColumn(name); !ok {
			return fmt.Errorf("unknown csv column %q", name)
		}
	}
	return nil
}

// Assemble writes a header row from fieldOrder followed by one row per record,
// in chunks, then compresses the result. Empty input yields a header-only file.
func Assemble(records []commerce.ProductRecord, fieldOrder []string, opts Options) (*Result, error) {
	if err := ValidateFields(fieldOrder); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if opts.Level < gzip.NoCompression || opts.Level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", opts.Level)
	}

	cols := make([]column, len(fieldOrder))
	for i, name := range fieldOrder {
		cols[i], _ = lookupColumn(name)
	}
	f := &formatter{mediaBaseURL: opts.MediaBaseURL, separator: opts.ListSeparator}

	var raw bytes.Buffer
	w := csv.NewWriter(&raw)
	if err := w.Write(fieldOrder); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(cols))
	for start := 0; start < len(records); start += opts.ChunkSize {
		end := start + opts.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		for _, p := range records[start:end] {
			for i, col := range cols {
				row[i] = col(p, f)
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write csv row %s: %w", p.SKU, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("flush csv chunk at %d: %w", start, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	compressed, err := compress(raw.Bytes(), opts.Level)
	if err != nil {
		return nil, err
	}

	return &Result{
		Bytes:   compressed,
		CSVSize: int64(raw.Len()),
		Rows:    len(records),
		Stats:   newStats(int64(raw.Len()), int64(len(compressed))),
	}, nil
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 100
	}
	if o.NoCompression {
		o.Level = gzip.NoCompression
	} else if o.Level == 0 {
		o.Level = 6
	}
	if o.ListSeparator == "" {
		o.ListSeparator = "|"
	}
	return o
}

func compress(data []byte, level int) ([]byte, error) {
	var out bytes.Buffer
	zw, err := gzip.NewWriterLevel(&out, level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip csv: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return out.Bytes(), nil
}

// newStats rounds savings to two decimals. Savings are negative when gzip
// overhead exceeds the gain, as it does for tiny files.
func newStats(original, compressed int64) *Stats {
	s := &Stats{OriginalSize: original, CompressedSize: compressed}
	if original > 0 {
		ratio := decimal.NewFromInt(compressed).Div(decimal.NewFromInt(original))
		s.SavingsPercent = decimal.NewFromInt(1).Sub(ratio).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return s
}
