package indexer

import (
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportBatch = 500

type eventRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Position   int32  `parquet:"name=position, type=INT32"`
	Timestamp  int64  `parquet:"name=timestamp, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account    string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	App        string `parquet:"name=app, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every indexed event from sequence from onwards to a
// snappy compressed parquet file and returns the number of rows written.
func (ix *Indexer) ExportParquet(ctx context.Context, path string, from uint64) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), new(eventRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	afterSeq, afterPos := from, -1
	for {
		batch, err := ix.eventsAfter(ctx, afterSeq, afterPos, exportBatch)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, evt := range batch {
			row := &eventRow{
				Sequence:   int64(evt.Sequence),
				Position:   int32(evt.Position),
				Timestamp:  evt.Timestamp,
				Type:       evt.Type,
				Account:    evt.Account,
				App:        evt.App,
				Attributes: evt.Attributes,
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
		}
		if len(batch) < exportBatch {
			break
		}
		last := batch[len(batch)-1]
		afterSeq, afterPos = last.Sequence, last.Position
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}

// eventsAfter pages through events strictly after (seq, pos) in commit order.
func (ix *Indexer) eventsAfter(ctx context.Context, seq uint64, pos, limit int) ([]EventRecord, error) {
	var out []EventRecord
	err := ix.db.WithContext(ctx).
		Where("sequence > ? OR (sequence = ? AND position > ?)", seq, seq, pos).
		Order("sequence ASC").Order("position ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
