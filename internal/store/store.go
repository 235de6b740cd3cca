// Package store gives access to the system policy directory: a set of
// line-oriented policy files loaded in lexical filename order, where earlier
// files take precedence over later ones. The store hands out opaque tokens
// with file content and refuses token-mismatched writes, so an editor never
// clobbers a file changed behind its back.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"qubeconf/internal/fileutil"
)

const (
	// Extension carried by every live policy file in the directory.
	Extension = ".policy"

	// ManagedPrefix is reserved for files this tool generates. Files with
	// this prefix must not be hand-edited; everything else is treated as
	// foreign and read-only.
	ManagedPrefix = "50-config-"

	// AnyToken disables the compare-and-swap check on Replace.
	AnyToken = "any"
)

// ErrTokenMismatch is returned when a file changed since it was read.
var ErrTokenMismatch = errors.New("policy file changed since it was read")

// ErrNotFound is returned when the requested policy file does not exist.
var ErrNotFound = errors.New("policy file does not exist")

// WriteObserver is notified after each committed file write. oldToken is
// empty when the file did not exist before.
type WriteObserver func(name, oldToken, newToken string, size int)

// Store reads and writes policy files under a single directory.
type Store struct {
	dir     string
	observe WriteObserver
}

// New opens a store over the given policy directory.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// SetWriteObserver installs a hook called after every committed write.
func (s *Store) SetWriteObserver(obs WriteObserver) {
	s.observe = obs
}

func (s *Store) notify(name, oldToken, text string) {
	if s.observe != nil {
		s.observe(name, oldToken, Token([]byte(text)), len(text))
	}
}

// currentToken returns the token of a file's on-disk content, or "".
func (s *Store) currentToken(name string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return ""
	}
	return Token(data)
}

// Dir returns the policy directory path.
func (s *Store) Dir() string { return s.dir }

// List returns the filenames of all policy files in load order (lexical).
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read policy directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Get returns a policy file's text and its token. The token encodes the
// exact content and must be presented to Replace.
func (s *Store) Get(name string) (text string, token string, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), Token(data), nil
}

// Replace atomically rewrites a managed policy file in full. The token
// must match the file's current content, or be AnyToken; for files that
// should not exist yet, pass an empty token. Foreign files are refused.
func (s *Store) Replace(name, text, token string) error {
	if !IsManaged(name) {
		return fmt.Errorf("refusing to write foreign policy file %s", name)
	}
	if err := s.checkToken(name, token); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}
	oldToken := s.currentToken(name)
	if err := fileutil.AtomicWriteString(filepath.Join(s.dir, name), text, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	s.notify(name, oldToken, text)
	return nil
}

// checkToken verifies a token against a file's current content, with the
// same rules as Replace.
func (s *Store) checkToken(name, token string) error {
	current, err := os.ReadFile(filepath.Join(s.dir, name))
	switch {
	case err == nil:
		if token != AnyToken && Token(current) != token {
			return fmt.Errorf("%w: %s", ErrTokenMismatch, name)
		}
	case os.IsNotExist(err):
		if token != AnyToken && token != "" {
			return fmt.Errorf("%w: %s", ErrTokenMismatch, name)
		}
	default:
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}

// Update is one pending replacement for ReplaceAll.
type Update struct {
	Name  string
	Text  string
	Token string
}

// ReplaceAll applies several token-guarded replacements as one transaction:
// every token is verified first, then all files are written, with applied
// files rolled back if any write fails.
func (s *Store) ReplaceAll(updates []Update) error {
	for _, u := range updates {
		if !IsManaged(u.Name) {
			return fmt.Errorf("refusing to write foreign policy file %s", u.Name)
		}
		if err := s.checkToken(u.Name, u.Token); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}

	oldTokens := make([]string, len(updates))
	for i, u := range updates {
		oldTokens[i] = s.currentToken(u.Name)
	}

	tx, err := fileutil.NewTransaction()
	if err != nil {
		return err
	}
	for _, u := range updates {
		if err := tx.Write(filepath.Join(s.dir, u.Name), []byte(u.Text), 0644); err != nil {
			tx.Discard()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for i, u := range updates {
		s.notify(u.Name, oldTokens[i], u.Text)
	}
	return nil
}

// Remove deletes a managed policy file. Foreign files are refused.
func (s *Store) Remove(name string) error {
	if !IsManaged(name) {
		return fmt.Errorf("refusing to remove foreign policy file %s", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// Before returns all filenames that load before the given file, i.e. files
// whose rules shadow it.
func (s *Store) Before(name string) ([]string, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if n == name {
			break
		}
		out = append(out, n)
	}
	return out, nil
}

// IsManaged reports whether a filename carries the reserved tool prefix.
func IsManaged(name string) bool {
	return strings.HasPrefix(name, ManagedPrefix)
}

// Token derives the opaque change token for file content.
func Token(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
