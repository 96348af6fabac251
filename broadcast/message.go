package broadcast

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is a payload posted to a channel. It is immutable once posted and shared by
// every subscriber of the channel.
//
// The payload is either a byte slice or a reader. A reader is consumed once, on the first
// call to Bytes, Reader or String; every later call sees the same bytes.
type Message struct {
	ID       uuid.UUID
	Channel  string
	PostedAt time.Time

	once   sync.Once
	data   []byte
	source io.Reader
	err    error
}

// NewMessage returns a message carrying data.
func NewMessage(channel string, data []byte) *Message {
	return &Message{ID: uuid.New(), Channel: channel, PostedAt: time.Now(), data: data}
}

// NewReaderMessage returns a message whose payload is read from r on first access.
// If r is an io.Closer it is closed after reading.
func NewReaderMessage(channel string, r io.Reader) *Message {
	return &Message{ID: uuid.New(), Channel: channel, PostedAt: time.Now(), source: r}
}

func (m *Message) load() {
	m.once.Do(func() {
		if m.source == nil {
			return
		}
		m.data, m.err = io.ReadAll(m.source)
		if c, ok := m.source.(io.Closer); ok {
			if err := c.Close(); err != nil && m.err == nil {
				m.err = err
			}
		}
		m.source = nil
	})
}

// Bytes returns the payload. The slice is shared and must not be modified.
func (m *Message) Bytes() ([]byte, error) {
	m.load()
	return m.data, m.err
}

// Reader returns a new reader over the payload.
func (m *Message) Reader() (io.Reader, error) {
	b, err := m.Bytes()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// Text returns the payload decoded as UTF-8.
func (m *Message) Text() (string, error) {
	b, err := m.Bytes()
	return string(b), err
}

// String returns the payload as text, or an empty string if it cannot be read.
func (m *Message) String() string {
	s, _ := m.Text()
	return s
}

// Len returns the payload size in bytes, reading a reader payload if needed.
func (m *Message) Len() int {
	b, _ := m.Bytes()
	return len(b)
}
