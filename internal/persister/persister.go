// Package persister buffers resolved message records and flushes them to
// storage in fixed-size batches.
package persister

import (
	"context"
	"fmt"

	"github.com/operis/record-ingestion/internal/database"
)

// Persister accumulates messages for one document and bulk-inserts them once
// the threshold is reached. Batches flush in document order; rows within a
// batch carry no ordering guarantee. Call Flush at end of document.
type Persister struct {
	store     database.MessageStore
	batchSize int

	pending   []*database.Message
	persisted int
}

// New creates a persister with the given flush threshold.
func New(store database.MessageStore, batchSize int) *Persister {
	return &Persister{
		store:     store,
		batchSize: batchSize,
		pending:   make([]*database.Message, 0, batchSize),
	}
}

// Add buffers one message, flushing when the buffer reaches the threshold.
func (p *Persister) Add(ctx context.Context, message *database.Message) error {
	p.pending = append(p.pending, message)
	if len(p.pending) >= p.batchSize {
		return p.Flush(ctx)
	}
	return nil
}

// Flush bulk-inserts whatever is buffered. A no-op when the buffer is empty.
func (p *Persister) Flush(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}

	if err := p.store.InsertBatch(ctx, p.pending); err != nil {
		return fmt.Errorf("failed to insert message batch of %d: %w", len(p.pending), err)
	}

	p.persisted += len(p.pending)
	p.pending = p.pending[:0]
	return nil
}

// Persisted reports how many messages have been flushed so far.
func (p *Persister) Persisted() int {
	return p.persisted
}
