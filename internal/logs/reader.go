// Package logs reads the daemon's log file for the logs command. The
// reader only ever returns whole, newline-terminated lines, so a write
// that races a read shows up complete on the next pass instead of split
// across two.
package logs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

// pollInterval is how often ReadFrom re-checks the file while waiting
// for new lines.
const pollInterval = 250 * time.Millisecond

// ReadLast returns the final n lines of the log at path and the byte
// offset where a subsequent ReadFrom should resume. n of zero keeps
// every line. A missing file is not an error; it reads as an empty log
// at offset zero.
func ReadLast(path string, n int) ([]string, int64, error) {
	lines, offset, err := readComplete(path, 0)
	if err != nil {
		return nil, 0, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, offset, nil
}

// ReadFrom returns the complete lines written at or after offset,
// together with the offset just past the last newline it consumed.
// When wait is positive and nothing new has been written yet, it polls
// until a line appears, wait elapses, or ctx is cancelled.
func ReadFrom(ctx context.Context, path string, offset int64, wait time.Duration) ([]string, int64, error) {
	deadline := time.Now().Add(wait)
	for {
		lines, next, err := readComplete(path, offset)
		if err != nil || len(lines) > 0 || wait <= 0 {
			return lines, next, err
		}
		if !time.Now().Before(deadline) {
			return nil, next, nil
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// readComplete reads from offset through the last newline in the file.
// Bytes after that newline belong to a line still being written and are
// left for the next read. An offset past the end of the file means the
// log was rotated or truncated underneath us, so the read restarts from
// the top.
func readComplete(path string, offset int64) ([]string, int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, offset, nil
	}
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, err
	}
	if info.IsDir() {
		return nil, offset, fmt.Errorf("log path %s is a directory", path)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, err
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, offset, nil
	}
	return strings.Split(string(data[:end]), "\n"), offset + int64(end) + 1, nil
}
