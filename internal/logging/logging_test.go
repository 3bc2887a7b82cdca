package logging

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Expectation: NewRingBuffer should create a buffer with the correct size.
func Test_NewRingBuffer_Success(t *testing.T) {
	t.Parallel()

	buf := NewRingBuffer(10)

	require.NotNil(t, buf)
	require.Equal(t, 10, buf.Size())
	require.Equal(t, 0, buf.index)
	require.False(t, buf.full)
}

// Expectation: Write should record lines with trailing newlines stripped.
func Test_RingBuffer_Write_Success(t *testing.T) {
	t.Parallel()

	buf := NewRingBuffer(3)

	_, err := buf.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = buf.Write([]byte("second"))
	require.NoError(t, err)

	require.Equal(t, []string{"first", "second"}, buf.Lines())
}

// Expectation: Lines should return the retained lines oldest first,
// also after the ring has wrapped around.
func Test_RingBuffer_Lines_Wrapped_Success(t *testing.T) {
	t.Parallel()

	buf := NewRingBuffer(3)

	for i := 1; i <= 5; i++ {
		_, err := fmt.Fprintf(buf, "line-%d\n", i)
		require.NoError(t, err)
	}

	require.Equal(t, []string{"line-3", "line-4", "line-5"}, buf.Lines())
}

// Expectation: Reset should return the ring buffer to zero state.
func Test_RingBuffer_Reset_Success(t *testing.T) {
	t.Parallel()

	buf := NewRingBuffer(2)

	_, err := buf.Write([]byte("one"))
	require.NoError(t, err)
	_, err = buf.Write([]byte("two"))
	require.NoError(t, err)
	require.True(t, buf.full)

	buf.Reset()

	require.Empty(t, buf.Lines())
	require.False(t, buf.full)
	require.Equal(t, 0, buf.index)
}

// Expectation: a logger from NewLogger should mirror every event into
// the ring buffer.
func Test_NewLogger_MirrorsToRingBuffer_Success(t *testing.T) {
	t.Parallel()

	buf := NewRingBuffer(5)
	logger := NewLogger(io.Discard, buf, zerolog.InfoLevel)

	logger.Info().Str("key", "value").Msg("hello there")

	lines := buf.Lines()
	require.Len(t, lines, 1)
	require.True(t, strings.Contains(lines[0], "hello there"))
	require.True(t, strings.Contains(lines[0], "value"))
}

// Expectation: events below the configured level should not reach the
// ring buffer.
func Test_NewLogger_LevelFiltered_Success(t *testing.T) {
	t.Parallel()

	buf := NewRingBuffer(5)
	logger := NewLogger(io.Discard, buf, zerolog.InfoLevel)

	logger.Debug().Msg("too quiet")

	require.Empty(t, buf.Lines())
}
