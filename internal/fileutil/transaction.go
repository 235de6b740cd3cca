package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Transaction groups writes to several configuration files so that a
// multi-page save either lands completely or not at all. Files are staged
// first; on commit every original is backed up, then each staged file is
// moved into place. Any failure rolls the already-applied files back to
// their backups.
type Transaction struct {
	id        string
	tempDir   string
	ops       []txOp
	finalized bool
}

type txOp struct {
	path    string
	staged  string
	backup  string
	existed bool
	mode    os.FileMode
	applied bool
}

// NewTransaction creates an empty transaction with a staging directory.
func NewTransaction() (*Transaction, error) {
	id := fmt.Sprintf("tx-%d", time.Now().UnixNano())
	tempDir, err := os.MkdirTemp("", "qubeconf-"+id+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return &Transaction{id: id, tempDir: tempDir}, nil
}

// Write stages content for path. Nothing touches the target until Commit.
func (tx *Transaction) Write(path string, content []byte, mode os.FileMode) error {
	if tx.finalized {
		return fmt.Errorf("transaction %s already finalized", tx.id)
	}
	staged := filepath.Join(tx.tempDir, fmt.Sprintf("op-%d", len(tx.ops)))
	if err := os.WriteFile(staged, content, 0600); err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}
	tx.ops = append(tx.ops, txOp{path: path, staged: staged, mode: mode})
	return nil
}

// Commit applies all staged writes. On the first failure every applied
// operation is reverted from its backup and the original error is returned.
func (tx *Transaction) Commit() error {
	if tx.finalized {
		return fmt.Errorf("transaction %s already finalized", tx.id)
	}
	tx.finalized = true
	defer os.RemoveAll(tx.tempDir)

	// Back up originals first so rollback is always possible.
	for i := range tx.ops {
		op := &tx.ops[i]
		data, err := os.ReadFile(op.path)
		switch {
		case err == nil:
			op.existed = true
			op.backup = op.staged + ".bak"
			if err := os.WriteFile(op.backup, data, 0600); err != nil {
				return fmt.Errorf("failed to back up %s: %w", op.path, err)
			}
		case os.IsNotExist(err):
			op.existed = false
		default:
			return fmt.Errorf("failed to read %s: %w", op.path, err)
		}
	}

	for i := range tx.ops {
		op := &tx.ops[i]
		data, err := os.ReadFile(op.staged)
		if err == nil {
			err = AtomicWrite(op.path, data, op.mode)
		}
		if err != nil {
			tx.rollback(i)
			return fmt.Errorf("failed to apply %s: %w", op.path, err)
		}
		op.applied = true
	}
	return nil
}

// rollback reverts operations [0, upto) to their pre-commit state.
func (tx *Transaction) rollback(upto int) {
	for i := 0; i < upto; i++ {
		op := &tx.ops[i]
		if !op.applied {
			continue
		}
		if op.existed {
			if data, err := os.ReadFile(op.backup); err == nil {
				_ = AtomicWrite(op.path, data, op.mode)
			}
			continue
		}
		_ = os.Remove(op.path)
	}
}

// Discard abandons the transaction without touching any target file.
func (tx *Transaction) Discard() {
	if !tx.finalized {
		tx.finalized = true
		os.RemoveAll(tx.tempDir)
	}
}
