package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Logger appends entries to a JSON-lines file under the config directory.
// A disabled logger swallows writes silently.
type Logger struct {
	mu      sync.Mutex
	path    string
	enabled bool
}

// NewLogger creates a logger writing to audit.log under configDir.
func NewLogger(configDir string) (*Logger, error) {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Logger{
		path:    filepath.Join(configDir, "audit.log"),
		enabled: true,
	}, nil
}

// Disabled returns a logger that records nothing.
func Disabled() *Logger {
	return &Logger{}
}

// Log appends one entry. Errors are returned but safe to ignore; auditing
// never blocks a policy write.
func (l *Logger) Log(entry *Entry) error {
	if !l.enabled || entry == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Recent returns up to n entries, newest first. Unparseable lines are
// skipped.
func (l *Logger) Recent(n int) ([]*Entry, error) {
	if !l.enabled {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}
