package internaltelemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// StorageMetrics holds the metric instruments for the block I/O layer.
type StorageMetrics struct {
	BlockReadCounter        metric.Int64Counter
	BlockWriteCounter       metric.Int64Counter
	PageReadCounter         metric.Int64Counter
	PageWriteCounter        metric.Int64Counter
	BytesReadCounter        metric.Int64Counter
	BytesWrittenCounter     metric.Int64Counter
	CompressedWritesCounter metric.Int64Counter
}

// NewStorageMetrics creates and registers all the metrics for the block I/O
// layer against the given meter.
func NewStorageMetrics(meter metric.Meter) (*StorageMetrics, error) {
	blockRead, err := meter.Int64Counter(
		"kitsunedb.storage.block_read_total",
		metric.WithDescription("Total number of raw blocks read from disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	blockWrite, err := meter.Int64Counter(
		"kitsunedb.storage.block_write_total",
		metric.WithDescription("Total number of raw blocks written to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageRead, err := meter.Int64Counter(
		"kitsunedb.storage.page_read_total",
		metric.WithDescription("Total number of btree pages read."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageWrite, err := meter.Int64Counter(
		"kitsunedb.storage.page_write_total",
		metric.WithDescription("Total number of btree pages written."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	bytesRead, err := meter.Int64Counter(
		"kitsunedb.storage.bytes_read_total",
		metric.WithDescription("Total bytes read from the block file."),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	bytesWritten, err := meter.Int64Counter(
		"kitsunedb.storage.bytes_written_total",
		metric.WithDescription("Total bytes written to the block file."),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	compressedWrites, err := meter.Int64Counter(
		"kitsunedb.storage.compressed_write_total",
		metric.WithDescription("Total number of blocks persisted in compressed form."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &StorageMetrics{
		BlockReadCounter:        blockRead,
		BlockWriteCounter:       blockWrite,
		PageReadCounter:         pageRead,
		PageWriteCounter:        pageWrite,
		BytesReadCounter:        bytesRead,
		BytesWrittenCounter:     bytesWritten,
		CompressedWritesCounter: compressedWrites,
	}, nil
}

// RecordRead bumps the read-side counters for one block read of n bytes.
func (m *StorageMetrics) RecordRead(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.BlockReadCounter.Add(ctx, 1)
	m.PageReadCounter.Add(ctx, 1)
	m.BytesReadCounter.Add(ctx, n)
}

// RecordWrite bumps the write-side counters for one block write of n bytes.
func (m *StorageMetrics) RecordWrite(ctx context.Context, n int64, compressed bool) {
	if m == nil {
		return
	}
	m.BlockWriteCounter.Add(ctx, 1)
	m.PageWriteCounter.Add(ctx, 1)
	m.BytesWrittenCounter.Add(ctx, n)
	if compressed {
		m.CompressedWritesCounter.Add(ctx, 1)
	}
}
