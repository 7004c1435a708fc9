package notify

import (
	"context"
	"fmt"
	"sync"
)

// Message is one send captured by MemoryNotifier.
type Message struct {
	To       string
	Template string
	Params   []string
	Body     string
	ID       string
}

// MemoryNotifier records sends instead of delivering them. It backs the
// demo deployment and tests across packages.
type MemoryNotifier struct {
	mu         sync.Mutex
	channel    string
	configured bool
	sendErr    error
	seq        int
	attempts   int
	sent       []Message
	reads      []string
}

var _ Notifier = (*MemoryNotifier)(nil)

func NewMemoryNotifier(channel string) *MemoryNotifier {
	return &MemoryNotifier{channel: channel, configured: true}
}

// SetConfigured toggles IsConfigured.
func (m *MemoryNotifier) SetConfigured(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = ok
}

// FailWith makes every following send return err (nil restores success).
func (m *MemoryNotifier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *MemoryNotifier) Channel() string { return m.channel }

func (m *MemoryNotifier) IsConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configured
}

func (m *MemoryNotifier) SendTemplate(_ context.Context, to, template string, params []string) (string, error) {
	return m.record(Message{
		To:       to,
		Template: template,
		Params:   append([]string(nil), params...),
		Body:     DefaultTextTemplates.Render(template, params),
	})
}

func (m *MemoryNotifier) SendText(_ context.Context, to, body string) (string, error) {
	return m.record(Message{To: to, Body: body})
}

func (m *MemoryNotifier) MarkRead(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, messageID)
	return nil
}

func (m *MemoryNotifier) record(msg Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.seq++
	msg.ID = fmt.Sprintf("mem-%d", m.seq)
	m.sent = append(m.sent, msg)
	return msg.ID, nil
}

// Sent returns a copy of every successful send.
func (m *MemoryNotifier) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// Reads returns the message ids passed to MarkRead.
func (m *MemoryNotifier) Reads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reads...)
}

// Attempts counts every send call, failed ones included.
func (m *MemoryNotifier) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
