// Package platform declares the external collaborator interfaces the
// orchestration core consumes: chat-platform messaging, card rendering
// with localization, and tabular export.
//
// The core supplies template identifiers, substitution values, and tally
// rows; it never knows the UI's shape or the wire protocol. Production
// implementations live outside this module; the fake subpackage provides
// in-memory implementations for tests and the scenario harness.
package platform

import (
	"context"
	"io"
)

// Member is a chat-platform participant as the messenger reports them.
type Member struct {
	ID          string
	DisplayName string
}

// Attachment is an instantiated interactive card plus its markdown
// fallback text, ready to attach to an outbound message.
type Attachment struct {
	// Body is the platform-specific card body. The core treats it as
	// opaque.
	Body any
	// Markdown is the fallback text rendered by clients without card
	// support.
	Markdown string
}

// Messenger sends and manages messages on the chat platform.
type Messenger interface {
	// SendMessage posts markdown with optional card attachments to a
	// room or a participant's direct channel. Returns the new message id.
	SendMessage(ctx context.Context, target, markdown string, attachments []Attachment) (string, error)

	// SendFile posts a downloadable file to a room. Returns the new
	// message id.
	SendFile(ctx context.Context, target, filename, contentType string, content io.Reader) (string, error)

	// DeleteMessage removes a previously sent message.
	DeleteMessage(ctx context.Context, messageID string) error

	// Member resolves a participant id to their profile.
	Member(ctx context.Context, participantID string) (Member, error)

	// Moderators lists the participant ids moderating a room. An empty
	// result means the room is unmoderated.
	Moderators(ctx context.Context, roomID string) ([]string, error)

	// IsDirectChannel reports whether the room is a one-to-one channel.
	IsDirectChannel(ctx context.Context, roomID string) (bool, error)
}

// CardRenderer instantiates an abstract card template with named
// substitutions for a locale.
type CardRenderer interface {
	Render(templateID string, subs map[string]string, locale string) (Attachment, error)
}

// Exporter turns a tally of rows under headers into a downloadable
// tabular file.
type Exporter interface {
	// ContentType is the MIME type of the produced file.
	ContentType() string
	// FileExt is the filename extension including the dot.
	FileExt() string
	// Export renders headers and rows into the file's bytes.
	Export(headers []string, rows [][]string) ([]byte, error)
}
