package notify

import (
	"context"
	"sync"
)

// Publisher sends a keyed payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, payload []byte) error
}

// Message records a single published message.
type Message struct {
	Topic   string
	Key     []byte
	Payload []byte
}

// MockPublisher records all publishes for test assertions.
type MockPublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, topic string, key, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.messages = append(m.messages, Message{
		Topic:   topic,
		Key:     append([]byte(nil), key...),
		Payload: append([]byte(nil), payload...),
	})

	return nil
}

// Messages returns a copy of all published messages.
func (m *MockPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make([]Message, len(m.messages))
	copy(messages, m.messages)

	return messages
}

// SetError causes all subsequent Publish calls to return err. Pass nil to
// clear.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}
