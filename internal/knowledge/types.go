package knowledge

import "fmt"

// Chunk is one stored text window produced by the chunker from a source
// message or attachment. Many chunks share one ParentID (the originating
// message id); all of a parent's chunks are replaced together on edit and
// removed together on delete.
type Chunk struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`

	// Embedding is excluded from JSON so cached similarity results stay
	// small; it is only needed on the write path.
	Embedding []float32 `json:"-"`

	IsAttachment   bool   `json:"is_attachment,omitempty"`
	AttachmentID   string `json:"attachment_id,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// Result is a search hit with its cosine similarity score.
type Result struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}

// ChunkID builds the deterministic id for a message chunk. Deterministic
// ids plus upsert semantics make re-ingestion of the same source item
// idempotent.
func ChunkID(parentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", parentID, index)
}

// AttachmentChunkID builds the deterministic id for an attachment chunk.
// The attachment id is part of the key so a message's own chunks and its
// attachments' chunks can never collide.
func AttachmentChunkID(parentID, attachmentID string, index int) string {
	return fmt.Sprintf("%s_att_%s_chunk_%d", parentID, attachmentID, index)
}
