// Package sync keeps the document store consistent with external
// content lifecycle events.
//
// Events for different source items run concurrently; events for the
// same ParentID are serialized through a keyed mutex so delete/insert
// sequences never interleave. Within one item the ordering rule is
// delete-before-insert: an edit first removes the old chunk set, then
// re-runs the creation path for the new content.
//
// The pipeline never retries on its own. A failure aborts only the
// current item's batch and surfaces to the caller; batches for other
// items are independent.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/prasetya0/guildlore/internal/knowledge"
)

// embedConcurrency bounds concurrent embedding calls per source item.
const embedConcurrency = 4

// Splitter produces the ordered chunk windows for a text.
type Splitter interface {
	Split(text string) []string
}

// Embedder maps text to its embedding vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// DocumentStore is the chunk persistence the pipeline drives.
type DocumentStore interface {
	UpsertBatch(ctx context.Context, chunks []knowledge.Chunk) error
	DeleteByParent(ctx context.Context, parentID string) (int64, error)
}

// ChannelGate decides whether a source channel participates in
// synchronization at all.
type ChannelGate interface {
	IsAllowedChannel(channelID string) bool
}

// AttachmentFetcher retrieves an attachment's text content.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Pipeline reacts to lifecycle events and drives chunk→embed→store
// operations.
//
// Pipeline is safe for concurrent use by multiple goroutines.
type Pipeline struct {
	splitter Splitter
	embedder Embedder
	store    DocumentStore
	gate     ChannelGate
	fetcher  AttachmentFetcher
	locks    *keyedMutex
	logger   *slog.Logger
}

// New creates a Pipeline. A nil logger falls back to slog.Default.
func New(splitter Splitter, embedder Embedder, store DocumentStore, gate ChannelGate, fetcher AttachmentFetcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		gate:     gate,
		fetcher:  fetcher,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// Handle processes one lifecycle event. Events from channels outside the
// allowlist are a silent no-op for every kind, including deletions.
func (p *Pipeline) Handle(ctx context.Context, ev Event) error {
	if !p.gate.IsAllowedChannel(ev.ChannelID) {
		return nil
	}
	if ev.ParentID == "" {
		return fmt.Errorf("event without parent id: %s %s", ev.Item, ev.Kind)
	}

	unlock := p.locks.Lock(ev.ParentID)
	defer unlock()

	switch ev.Kind {
	case Created:
		return p.ingest(ctx, ev)
	case Edited:
		return p.reingest(ctx, ev)
	case Deleted:
		return p.remove(ctx, ev)
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// Ingest runs the creation path for ev regardless of the channel
// allowlist. Operator-driven ingestion is deliberate and not gated.
func (p *Pipeline) Ingest(ctx context.Context, ev Event) error {
	if ev.ParentID == "" {
		return fmt.Errorf("event without parent id: %s %s", ev.Item, ev.Kind)
	}
	unlock := p.locks.Lock(ev.ParentID)
	defer unlock()
	return p.ingest(ctx, ev)
}

// Forget removes every stored chunk for parentID regardless of the
// channel allowlist and reports how many were removed.
func (p *Pipeline) Forget(ctx context.Context, parentID string) (int64, error) {
	if parentID == "" {
		return 0, errors.New("empty parent id")
	}
	unlock := p.locks.Lock(parentID)
	defer unlock()

	n, err := p.store.DeleteByParent(ctx, parentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for %q: %w", parentID, err)
	}
	if n > 0 {
		p.logger.Info("document chunks deleted", "parent_id", parentID, "count", n)
	}
	return n, nil
}

// ingest runs the creation path: chunk, embed, and insert the item's
// rows in one batch. Deterministic chunk ids plus upsert semantics make
// re-processing the same creation event idempotent.
func (p *Pipeline) ingest(ctx context.Context, ev Event) error {
	chunks := p.buildMessageChunks(ev)
	chunks = append(chunks, p.buildAttachmentChunks(ctx, ev)...)
	if len(chunks) == 0 {
		return nil
	}

	// All embeddings must complete before the insert batch is issued;
	// any failure aborts the whole item so the store never holds a
	// partially embedded chunk set.
	if err := p.embedAll(ctx, chunks); err != nil {
		return fmt.Errorf("embedding chunks for %s %q: %w", ev.Item, ev.ParentID, err)
	}

	if err := p.store.UpsertBatch(ctx, chunks); err != nil {
		return fmt.Errorf("storing chunks for %s %q: %w", ev.Item, ev.ParentID, err)
	}

	p.logger.Info("document chunks added",
		"parent_id", ev.ParentID, "item", ev.Item.String(), "count", len(chunks))
	return nil
}

// reingest handles an edit: remove the old chunk set, then re-run the
// creation path. If the delete succeeds and the insert fails the item is
// left with no content, logged as an error; stale chunks are never kept.
func (p *Pipeline) reingest(ctx context.Context, ev Event) error {
	if _, err := p.store.DeleteByParent(ctx, ev.ParentID); err != nil {
		return fmt.Errorf("deleting stale chunks for %q: %w", ev.ParentID, err)
	}

	if err := p.ingest(ctx, ev); err != nil {
		p.logger.Error("edit left item without chunks after delete",
			"parent_id", ev.ParentID, "error", err)
		return err
	}

	p.logger.Info("document chunks replaced", "parent_id", ev.ParentID)
	return nil
}

// remove deletes every chunk belonging to the item. Zero deletions is a
// valid no-op (the item may never have been ingested).
func (p *Pipeline) remove(ctx context.Context, ev Event) error {
	n, err := p.store.DeleteByParent(ctx, ev.ParentID)
	if err != nil {
		return fmt.Errorf("deleting chunks for %s %q: %w", ev.Item, ev.ParentID, err)
	}
	if n > 0 {
		p.logger.Info("document chunks deleted", "parent_id", ev.ParentID, "count", n)
	}
	return nil
}

// buildMessageChunks chunks the event content into rows without
// embeddings.
func (p *Pipeline) buildMessageChunks(ev Event) []knowledge.Chunk {
	contents := p.splitter.Split(ev.Content)
	chunks := make([]knowledge.Chunk, 0, len(contents))
	for i, content := range contents {
		chunks = append(chunks, knowledge.Chunk{
			ID:        knowledge.ChunkID(ev.ParentID, i),
			ParentID:  ev.ParentID,
			ChannelID: ev.ChannelID,
			Content:   content,
		})
	}
	return chunks
}

// buildAttachmentChunks fetches and chunks the event's text attachments.
// A fetch failure is logged and skips only that attachment; it must not
// abort the rest of the batch.
func (p *Pipeline) buildAttachmentChunks(ctx context.Context, ev Event) []knowledge.Chunk {
	var chunks []knowledge.Chunk
	for _, att := range ev.Attachments {
		if mimeType(att.ContentType) != "text/plain" {
			continue
		}

		text, err := p.fetcher.Fetch(ctx, att.URL)
		if err != nil {
			p.logger.Error("fetching attachment failed, skipping",
				"attachment_id", att.ID, "parent_id", ev.ParentID, "error", err)
			continue
		}

		for i, content := range p.splitter.Split(text) {
			chunks = append(chunks, knowledge.Chunk{
				ID:             knowledge.AttachmentChunkID(ev.ParentID, att.ID, i),
				ParentID:       ev.ParentID,
				ChannelID:      ev.ChannelID,
				Content:        content,
				IsAttachment:   true,
				AttachmentID:   att.ID,
				AttachmentName: att.Name,
			})
		}
	}
	return chunks
}

// embedAll fills in the embedding of every chunk, fanning out up to
// embedConcurrency provider calls.
func (p *Pipeline) embedAll(ctx context.Context, chunks []knowledge.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i := range chunks {
		g.Go(func() error {
			vec, err := p.embedder.EmbedText(gctx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("chunk %q: %w", chunks[i].ID, err)
			}
			chunks[i].Embedding = vec
			return nil
		})
	}

	return g.Wait()
}

// mimeType strips parameters from a content type, e.g.
// "text/plain; charset=utf-8" → "text/plain".
func mimeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}
