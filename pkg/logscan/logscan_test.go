package logscan

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenLog returns some lines and then fails mid-read
type brokenLog struct {
	prefix string
}

func (b brokenLog) Open() (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader(b.prefix), failingReader{})), nil
}

type failingReader struct{}

func (failingReader) Read(_ []byte) (int, error) {
	return 0, errors.New("truncated while writing")
}

// countingLog records how far the scanner read
type countingLog struct {
	content string
	read    *int
}

func (c countingLog) Open() (io.ReadCloser, error) {
	return io.NopCloser(&countingReader{r: strings.NewReader(c.content), n: c.read}), nil
}

type countingReader struct {
	r io.Reader
	n *int
}

func (c *countingReader) Read(p []byte) (int, error) {
	// one byte at a time so the count reflects what the scanner consumed
	if len(p) > 1 {
		p = p[:1]
	}
	n, err := c.r.Read(p)
	*c.n += n
	return n, err
}

func writeLog(t *testing.T, content string) FileLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return FileLog(path)
}

func TestContains(t *testing.T) {
	log := writeLog(t, "Started by timer\nBuilding in workspace\nERROR: disk full\nFinished: FAILURE\n")

	t.Run("pattern found", func(t *testing.T) {
		found, err := ContainsPattern(log, "disk full")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("pattern not found", func(t *testing.T) {
		found, err := ContainsPattern(log, "out of memory")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("match is not anchored", func(t *testing.T) {
		found, err := ContainsPattern(log, "disk")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = ContainsPattern(log, "^disk full$")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("match is per line", func(t *testing.T) {
		found, err := ContainsPattern(log, "workspace.ERROR")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("last line without newline", func(t *testing.T) {
		found, err := ContainsPattern(ReaderLog("a\nb\nOutOfMemoryError"), "OutOfMemory")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("crlf line endings", func(t *testing.T) {
		found, err := ContainsPattern(ReaderLog("one\r\ntimeout$\r\n"), "timeout\\$$")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("stops at first match", func(t *testing.T) {
		read := 0
		content := "hit\n" + strings.Repeat("filler line\n", 1000)
		found, err := ContainsPattern(countingLog{content: content, read: &read}, "hit")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Less(t, read, len(content))
	})

	t.Run("empty log", func(t *testing.T) {
		found, err := ContainsPattern(ReaderLog(""), "anything")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestContainsErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ContainsPattern(FileLog(filepath.Join(t.TempDir(), "missing")), "x")
		assert.ErrorIs(t, err, ErrLogUnavailable)
	})

	t.Run("nil source", func(t *testing.T) {
		_, err := ContainsPattern(nil, "x")
		assert.ErrorIs(t, err, ErrLogUnavailable)
	})

	t.Run("read fails mid stream", func(t *testing.T) {
		_, err := ContainsPattern(brokenLog{prefix: "line one\nline two\n"}, "never")
		assert.ErrorIs(t, err, ErrLogUnavailable)
	})

	t.Run("match before read failure", func(t *testing.T) {
		found, err := ContainsPattern(brokenLog{prefix: "disk full\n"}, "disk full")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := ContainsPattern(ReaderLog("x"), "([")
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})
}

func TestCompile(t *testing.T) {
	re, err := Compile("")
	require.NoError(t, err)
	assert.Nil(t, re)

	re, err = Compile("fail(ed|ure)")
	require.NoError(t, err)
	assert.True(t, re.MatchString("build failed"))

	_, err = Compile("*oops")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestGate(t *testing.T) {
	re, err := Compile("disk full")
	require.NoError(t, err)

	tests := []struct {
		name    string
		src     Source
		re      bool
		want    GateResult
		allows  bool
		wantErr bool
	}{
		{"no pattern", nil, false, GatePassed, true, false},
		{"found", ReaderLog("ERROR: disk full"), true, GatePassed, true, false},
		{"not found", ReaderLog("ERROR: timeout"), true, GateNotFound, false, false},
		{"unreadable", FileLog("/nonexistent/log/file"), true, GateScanError, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern := re
			if !tt.re {
				pattern = nil
			}
			got, err := Gate(tt.src, pattern)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.allows, got.Allows())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrLogUnavailable)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, "scan_error", GateScanError.String())
}
