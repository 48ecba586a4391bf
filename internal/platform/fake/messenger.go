// Package fake provides in-memory platform collaborators for tests and
// the scenario harness.
package fake

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/quorum/internal/platform"
)

// SentMessage records one outbound message for assertions.
type SentMessage struct {
	ID          string
	Target      string
	Markdown    string
	Attachments []platform.Attachment
	Filename    string // set for file sends
	Content     []byte // set for file sends
}

// Messenger is an in-memory platform.Messenger. Message ids are minted
// locally; sent messages are retained in order for inspection.
type Messenger struct {
	mu          sync.Mutex
	sent        []SentMessage
	deleted     []string
	members     map[string]platform.Member
	moderators  map[string][]string
	directRooms map[string]bool
	failSend    error

	// NextID overrides id minting when set. Used by tests that need
	// deterministic message ids.
	NextID func() string
}

// NewMessenger creates an empty fake messenger.
func NewMessenger() *Messenger {
	return &Messenger{
		members:     map[string]platform.Member{},
		moderators:  map[string][]string{},
		directRooms: map[string]bool{},
	}
}

// AddMember registers a participant profile.
func (m *Messenger) AddMember(id, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[id] = platform.Member{ID: id, DisplayName: displayName}
}

// SetModerators fixes the moderator set of a room.
func (m *Messenger) SetModerators(roomID string, participantIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moderators[roomID] = participantIDs
}

// SetDirect marks a room as a one-to-one channel.
func (m *Messenger) SetDirect(roomID string, direct bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directRooms[roomID] = direct
}

// FailSends makes every subsequent send return err. Pass nil to recover.
func (m *Messenger) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSend = err
}

// Sent returns a copy of all messages sent so far.
func (m *Messenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Deleted returns the ids of all deleted messages.
func (m *Messenger) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// LastTo returns the most recent message sent to target, or nil.
func (m *Messenger) LastTo(target string) *SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Target == target {
			msg := m.sent[i]
			return &msg
		}
	}
	return nil
}

func (m *Messenger) SendMessage(ctx context.Context, target, markdown string, attachments []platform.Attachment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSend != nil {
		return "", m.failSend
	}

	msg := SentMessage{
		ID:          m.mintID(),
		Target:      target,
		Markdown:    markdown,
		Attachments: attachments,
	}
	m.sent = append(m.sent, msg)
	return msg.ID, nil
}

func (m *Messenger) SendFile(ctx context.Context, target, filename, contentType string, content io.Reader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSend != nil {
		return "", m.failSend
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("fake send file: %w", err)
	}

	msg := SentMessage{
		ID:       m.mintID(),
		Target:   target,
		Filename: filename,
		Content:  data,
	}
	m.sent = append(m.sent, msg)
	return msg.ID, nil
}

func (m *Messenger) DeleteMessage(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *Messenger) Member(ctx context.Context, participantID string) (platform.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if member, ok := m.members[participantID]; ok {
		return member, nil
	}
	// Unknown participants resolve to their id, so tests need not
	// register every actor.
	return platform.Member{ID: participantID, DisplayName: participantID}, nil
}

func (m *Messenger) Moderators(ctx context.Context, roomID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.moderators[roomID]...), nil
}

func (m *Messenger) IsDirectChannel(ctx context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directRooms[roomID], nil
}

func (m *Messenger) mintID() string {
	if m.NextID != nil {
		return m.NextID()
	}
	return uuid.NewString()
}

var _ platform.Messenger = (*Messenger)(nil)
