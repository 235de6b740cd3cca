// Package manager is the single point through which the editor reads and
// writes policy. It layers rule parsing, the machine-generated disclaimer,
// default-policy seeding and precedence conflict checks over the raw file
// store.
package manager

import (
	"errors"
	"fmt"

	"qubeconf/internal/policy"
	"qubeconf/internal/store"
)

// Disclaimer is prepended to every file the tool writes.
const Disclaimer = `# THIS IS AN AUTOMATICALLY GENERATED POLICY FILE.
# Any changes made manually may be overwritten by the configuration tool.
`

// Manager coordinates policy file access for all handlers. Use a single
// instance per process.
type Manager struct {
	store *store.Store
}

// New creates a manager over the given store.
func New(st *store.Store) *Manager {
	return &Manager{store: st}
}

// Store exposes the underlying store for watchers.
func (m *Manager) Store() *store.Store { return m.store }

// NewRule builds a rule for a service with the wildcard argument, the way
// every tool-generated rule is shaped.
func (m *Manager) NewRule(service, source, target string, action policy.Action) policy.Rule {
	return policy.New(service, "*", source, target, action)
}

// TextToRules parses policy text and returns its rules. Parse problems are
// returned as an *policy.ErrorList; pass-through lines are not an error but
// are not returned either.
func (m *Manager) TextToRules(text string) ([]policy.Rule, error) {
	file, err := policy.Parse("", text)
	if err != nil {
		return nil, err
	}
	return file.Rules(), nil
}

// RulesToText renders rules into file content, disclaimer first.
func (m *Manager) RulesToText(rules []policy.Rule) string {
	text := Disclaimer
	for _, rule := range rules {
		text += rule.String() + "\n"
	}
	return text
}

// CompareRulesToText reports whether a rule list is semantically equivalent
// to the given policy text.
func (m *Manager) CompareRulesToText(rules []policy.Rule, text string) bool {
	other, err := m.TextToRules(text)
	if err != nil {
		return false
	}
	if len(rules) != len(other) {
		return false
	}
	for i := range rules {
		if !rules[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// RulesFromFile loads the rules of a managed file together with its save
// token. A missing file is seeded with the provided default policy first,
// so every handler starts from a well-formed file; with an empty default
// the file is simply reported as absent (nil rules, empty token).
func (m *Manager) RulesFromFile(name, defaultPolicy string) ([]policy.Rule, string, error) {
	text, token, err := m.store.Get(name)
	if errors.Is(err, store.ErrNotFound) {
		if defaultPolicy == "" {
			return nil, "", nil
		}
		if err := m.store.Replace(name, defaultPolicy, ""); err != nil {
			return nil, "", fmt.Errorf("failed to seed default policy: %w", err)
		}
		text, token, err = m.store.Get(name)
	}
	if err != nil {
		return nil, "", err
	}

	rules, err := m.TextToRules(text)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	return rules, token, nil
}

// RawFromFile loads a managed file verbatim with its token. A missing file
// yields the default policy text and an empty token.
func (m *Manager) RawFromFile(name, defaultPolicy string) (string, string, error) {
	text, token, err := m.store.Get(name)
	if errors.Is(err, store.ErrNotFound) {
		return defaultPolicy, "", nil
	}
	if err != nil {
		return "", "", err
	}
	return text, token, nil
}

// SaveRules writes a rule list to a managed file in full, guarded by the
// token from the last read.
func (m *Manager) SaveRules(name string, rules []policy.Rule, token string) error {
	return m.store.Replace(name, m.RulesToText(rules), token)
}

// SaveRaw writes verbatim policy text to a managed file, token-guarded.
// The text must parse cleanly; malformed rule lines reject the save.
func (m *Manager) SaveRaw(name, text, token string) error {
	if _, err := policy.Parse(name, text); err != nil {
		return err
	}
	return m.store.Replace(name, text, token)
}

// ConflictingFiles returns every policy file that loads before ownFile and
// contains at least one rule for the given service. Writes to ownFile are
// shadowed by those files, so the caller must surface them to the user
// before allowing edits.
func (m *Manager) ConflictingFiles(service, ownFile string) ([]string, error) {
	before, err := m.store.Before(ownFile)
	if err != nil {
		return nil, err
	}
	var conflicting []string
	for _, name := range before {
		text, _, err := m.store.Get(name)
		if err != nil {
			return nil, err
		}
		// Parse problems in foreign files do not hide their valid rules.
		file, _ := policy.Parse(name, text)
		for _, rule := range file.Rules() {
			if rule.MatchesService(service) {
				conflicting = append(conflicting, name)
				break
			}
		}
	}
	return conflicting, nil
}
