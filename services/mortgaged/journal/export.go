package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	MortgageID *int64 `parquet:"name=mortgage_id, type=INT64, repetitiontype=OPTIONAL"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	RequestID  string `parquet:"name=request_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every event matching f (ignoring f.Limit) to w as a
// snappy-compressed parquet file and returns the number of rows written.
func (j *Journal) ExportParquet(ctx context.Context, w io.Writer, f Filter) (int, error) {
	if j == nil || j.db == nil {
		return 0, ErrNotConfigured
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetRow), 1)
	if err != nil {
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := f
	page.Limit = maxListLimit
	for {
		entries, err := j.List(ctx, page)
		if err != nil {
			return written, err
		}
		for _, entry := range entries {
			row, err := toParquetRow(entry)
			if err != nil {
				return written, err
			}
			if err := pw.Write(row); err != nil {
				return written, fmt.Errorf("journal: write row %d: %w", entry.Sequence, err)
			}
			written++
		}
		if len(entries) < page.Limit {
			break
		}
		page.After = entries[len(entries)-1].Sequence
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("journal: finish parquet: %w", err)
	}
	return written, nil
}

func toParquetRow(entry Entry) (*parquetRow, error) {
	attrs, err := json.Marshal(entry.Attributes)
	if err != nil {
		return nil, fmt.Errorf("journal: encode attributes: %w", err)
	}
	row := &parquetRow{
		Sequence:   int64(entry.Sequence),
		Type:       entry.Type,
		Attributes: string(attrs),
		RequestID:  entry.RequestID,
		CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if entry.MortgageID != nil {
		id := int64(*entry.MortgageID)
		row.MortgageID = &id
	}
	return row, nil
}
