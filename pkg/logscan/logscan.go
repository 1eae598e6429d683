package logscan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	ErrLogUnavailable = errors.New("log unavailable")
	ErrInvalidPattern = errors.New("invalid gating pattern")
)

// Source gives access to a build log as a text stream
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileLog is a build log stored on disk
type FileLog string

func (f FileLog) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// ReaderLog serves a log already held in memory
type ReaderLog string

func (r ReaderLog) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(r))), nil
}

// Compile compiles a gating pattern. An empty pattern returns nil, nil (no gate).
func Compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// Contains reports whether any line of the log matches re.
// The log is read one line at a time and the search stops at the first match.
func Contains(src Source, re *regexp.Regexp) (bool, error) {
	if re == nil {
		return false, fmt.Errorf("%w: nil pattern", ErrInvalidPattern)
	}
	if src == nil {
		return false, fmt.Errorf("%w: no log location", ErrLogUnavailable)
	}

	rc, err := src.Open()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLogUnavailable, err)
	}
	defer rc.Close()

	reader := bufio.NewReader(rc)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 && re.MatchString(strings.TrimRight(line, "\r\n")) {
			return true, nil
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrLogUnavailable, err)
		}
	}
}

// ContainsPattern compiles pattern and scans the log for it
func ContainsPattern(src Source, pattern string) (bool, error) {
	re, err := Compile(pattern)
	if err != nil {
		return false, err
	}
	return Contains(src, re)
}
