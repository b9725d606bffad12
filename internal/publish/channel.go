package publish

import "context"

// Attachment references a media file already known to the chat platform.
type Attachment struct {
	FileID string
	Kind   string // one of the state.Kind* values
}

// Channel is the chat-platform boundary the publisher needs. Every call may
// fail with a transient remote error; the publisher treats such failures as
// non-fatal to the process.
type Channel interface {
	// Deliver sends text (and an optional attachment, where text becomes the
	// caption) to the chat and returns the remote message id.
	Deliver(ctx context.Context, chatID int64, text string, att *Attachment) (int, error)

	// Delete removes a previously sent message.
	Delete(ctx context.Context, chatID int64, messageID int) error

	// ChatAnchor renders an HTML link to the chat, preferring inviteLink when
	// set over the chat's public address.
	ChatAnchor(ctx context.Context, chatID int64, inviteLink string) (string, error)
}
