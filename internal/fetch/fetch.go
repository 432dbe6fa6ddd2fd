// Package fetch turns one remote billing object into fixed-size pages of
// decoded rows. The decode is single-shot: the whole object is read and
// decoded before the first page is yielded, so peak memory scales with
// object size, not page size.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

// PageSize bounds the number of rows per yielded page.
const PageSize = 2000

// BillingRow is one raw provider record. Pointer fields are the explicit
// absent-value marker: a nil field was missing or NaN in the source.
type BillingRow struct {
	UsageDate     *string  `parquet:"usage_date,optional"`
	Region        *string  `parquet:"region,optional"`
	ServiceCode   *string  `parquet:"service_code,optional"`
	UsageType     *string  `parquet:"usage_type,optional"`
	UsageUnit     *string  `parquet:"usage_unit,optional"`
	InstanceType  *string  `parquet:"instance_type,optional"`
	Tags          *string  `parquet:"tags,optional"`
	UsageQuantity *float64 `parquet:"usage_quantity,optional"`
	UsageCost     *float64 `parquet:"usage_cost,optional"`
}

// normalize replaces NaN sentinels left by upstream exporters with nil.
func (r *BillingRow) normalize() {
	if r.UsageQuantity != nil && math.IsNaN(*r.UsageQuantity) {
		r.UsageQuantity = nil
	}
	if r.UsageCost != nil && math.IsNaN(*r.UsageCost) {
		r.UsageCost = nil
	}
}

// ObjectReader reads one already-listed remote object in full.
type ObjectReader interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
}

// Fetcher decodes billing objects into row pages.
type Fetcher struct {
	reader ObjectReader
	log    zerolog.Logger
}

func New(reader ObjectReader, log zerolog.Logger) *Fetcher {
	return &Fetcher{reader: reader, log: log}
}

// Fetch reads and decodes the object at key, returning a restartable
// page stream over its rows.
func (f *Fetcher) Fetch(ctx context.Context, key string) (*Stream, error) {
	data, err := f.reader.ReadObject(ctx, key)
	if err != nil {
		return nil, err
	}

	rows, err := parquet.Read[BillingRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode billing object %s: %w", key, err)
	}

	for i := range rows {
		rows[i].normalize()
	}

	f.log.Debug().Str("key", key).Int("rows", len(rows)).Msg("decoded billing object")

	return &Stream{rows: rows}, nil
}

// Stream yields pages of at most PageSize rows. The final page may be
// smaller; an exhausted stream reports ok=false.
type Stream struct {
	rows   []BillingRow
	offset int
}

// Next returns the next page. ok is false once all rows were yielded.
func (s *Stream) Next() (page []BillingRow, ok bool) {
	if s.offset >= len(s.rows) {
		return nil, false
	}

	end := s.offset + PageSize
	if end > len(s.rows) {
		end = len(s.rows)
	}
	page = s.rows[s.offset:end]
	s.offset = end
	return page, true
}

// Reset rewinds the stream to the first page.
func (s *Stream) Reset() {
	s.offset = 0
}
