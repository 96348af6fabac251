package broadcast

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type closingReader struct {
	io.Reader
	closed bool
}

func (r *closingReader) Close() error { r.closed = true; return nil }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestMessage_Bytes(t *testing.T) {
	m := NewMessage("a", []byte("payload"))

	b, err := m.Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), b)
	require.Equal(t, "payload", m.String())
	require.Equal(t, 7, m.Len())
	require.Equal(t, "a", m.Channel)
	require.False(t, m.PostedAt.IsZero())
	require.NotEqual(t, NewMessage("a", nil).ID, m.ID)
}

func TestMessage_ReaderConsumedOnce(t *testing.T) {
	src := &closingReader{Reader: strings.NewReader("from reader")}
	m := NewReaderMessage("a", src)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Text()
			require.NoError(t, err)
			require.Equal(t, "from reader", s)
		}()
	}
	wg.Wait()
	require.True(t, src.closed)

	r, err := m.Reader()
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "from reader", string(b))
}

func TestMessage_ReaderError(t *testing.T) {
	m := NewReaderMessage("a", failingReader{})

	_, err := m.Bytes()
	require.Error(t, err)
	_, err = m.Reader()
	require.Error(t, err)
	require.Empty(t, m.String())
	require.Zero(t, m.Len())
}
