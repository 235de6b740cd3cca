// Package audit keeps an append-only record of every policy file write
// the tool performs, so an unexpected policy state can be traced back to
// the session that produced it.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry records one committed policy file write.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// File is the policy filename relative to the policy directory.
	File string `json:"file"`
	// OldToken is the content token the write replaced; empty for a new
	// file.
	OldToken string `json:"old_token,omitempty"`
	// NewToken is the content token after the write.
	NewToken string `json:"new_token"`
	// Bytes is the size of the written content.
	Bytes int `json:"bytes"`
}

// NewEntry creates an entry with a fresh ID and timestamp.
func NewEntry(file, oldToken, newToken string, bytes int) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		File:      file,
		OldToken:  oldToken,
		NewToken:  newToken,
		Bytes:     bytes,
	}
}
