package sync

// EventKind discriminates the lifecycle transition an event describes.
type EventKind int

const (
	// Created indicates new content: a fresh message or thread root.
	Created EventKind = iota

	// Edited indicates the content of an already-ingested item changed.
	Edited

	// Deleted indicates the item (or its enclosing thread) was removed.
	Deleted
)

// String returns the kind's name for logging.
func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Edited:
		return "edited"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ItemKind discriminates the source item an event refers to.
type ItemKind int

const (
	// Message is a single message.
	Message ItemKind = iota

	// Thread is a forum thread, identified by its root message.
	Thread
)

// String returns the item kind's name for logging.
func (k ItemKind) String() string {
	if k == Thread {
		return "thread"
	}
	return "message"
}

// Attachment describes a file attached to a source message. Only
// text/plain attachments are ingested; others are skipped silently.
type Attachment struct {
	ID          string
	Name        string
	URL         string
	ContentType string
}

// Event is one external content lifecycle event. ParentID identifies the
// source item whose chunk set the event affects; ChannelID is the source
// channel consulted against the allowlist.
type Event struct {
	Kind        EventKind
	Item        ItemKind
	ParentID    string
	ChannelID   string
	Content     string
	Attachments []Attachment
}
