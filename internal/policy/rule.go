package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Action is the decision a rule makes for a matching call.
type Action string

const (
	Allow Action = "allow"
	Ask   Action = "ask"
	Deny  Action = "deny"
)

// Keyword tokens usable in source/target positions. Keywords always start
// with '@'; anything else is a literal qube name.
const (
	TokenAnyVM   = "@anyvm"
	TokenAdminVM = "@adminvm"
	TokenDefault = "@default"
	TokenDispVM  = "@dispvm"

	prefixTag    = "@tag:"
	prefixType   = "@type:"
	prefixDispVM = "@dispvm:"
)

// paramOrder is the canonical serialization order for action parameters.
var paramOrder = []string{"target", "default_target", "user", "autostart", "notify"}

// allowedParams lists which parameters each action accepts. A parameter
// outside this set is a qualifier syntax error, not a pass-through.
var allowedParams = map[Action]map[string]bool{
	Allow: {"target": true, "user": true, "autostart": true, "notify": true},
	Ask:   {"default_target": true, "user": true, "autostart": true, "notify": true},
	Deny:  {"notify": true},
}

var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

// Rule is a single parsed policy line: one authorization decision for calls
// of a service from a source qube to a target qube. Rules are matched first
// to last; order carries meaning and must be preserved.
type Rule struct {
	Service  string // service name or "*"
	Argument string // "*" or "+something"
	Source   string
	Target   string
	Action   Action
	Params   map[string]string // qualifier parameters, e.g. target=, notify=
}

// New builds a rule with no qualifier parameters.
func New(service, argument, source, target string, action Action) Rule {
	return Rule{
		Service:  service,
		Argument: argument,
		Source:   source,
		Target:   target,
		Action:   action,
		Params:   map[string]string{},
	}
}

// Param returns the named qualifier parameter, or "" when absent.
func (r Rule) Param(key string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[key]
}

// SetParam sets a qualifier parameter; an empty value removes it.
func (r *Rule) SetParam(key, value string) {
	if r.Params == nil {
		r.Params = map[string]string{}
	}
	if value == "" {
		delete(r.Params, key)
		return
	}
	r.Params[key] = value
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	out.Params = make(map[string]string, len(r.Params))
	for k, v := range r.Params {
		out.Params[k] = v
	}
	return out
}

// String renders the rule in file syntax with canonical parameter order.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.Service)
	b.WriteByte('\t')
	b.WriteString(r.Argument)
	b.WriteByte('\t')
	b.WriteString(r.Source)
	b.WriteByte('\t')
	b.WriteString(r.Target)
	b.WriteByte('\t')
	b.WriteString(string(r.Action))
	for _, key := range paramOrder {
		if v, ok := r.Params[key]; ok {
			b.WriteByte(' ')
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// Equal reports semantic equality (rendered form match).
func (r Rule) Equal(other Rule) bool {
	return r.String() == other.String()
}

// MatchesService reports whether this rule applies to calls of the given
// service name. A "*" service matches everything.
func (r Rule) MatchesService(service string) bool {
	return r.Service == "*" || r.Service == service
}

// Overlaps reports whether two rules can match the same (source, target)
// call, which makes the later one dead under first-match-wins.
func (r Rule) Overlaps(other Rule) bool {
	return tokensOverlap(r.Source, other.Source) && tokensOverlap(r.Target, other.Target)
}

func tokensOverlap(a, b string) bool {
	if a == b || a == TokenAnyVM || b == TokenAnyVM {
		return true
	}
	// Selector tokens (@tag:, @type:) can cover concrete names; without
	// asking the admin API we conservatively treat selector vs name as
	// overlapping only when one side is a selector and the other a name.
	aSel := strings.HasPrefix(a, prefixTag) || strings.HasPrefix(a, prefixType)
	bSel := strings.HasPrefix(b, prefixTag) || strings.HasPrefix(b, prefixType)
	if aSel && !strings.HasPrefix(b, "@") {
		return true
	}
	if bSel && !strings.HasPrefix(a, "@") {
		return true
	}
	return false
}

// validateToken checks a source or target token. @default is only valid in
// target position.
func validateToken(token string, isTarget bool) error {
	if token == "" {
		return fmt.Errorf("empty token")
	}
	if !strings.HasPrefix(token, "@") {
		if !nameRe.MatchString(token) {
			return fmt.Errorf("invalid qube name %q", token)
		}
		return nil
	}
	switch token {
	case TokenAnyVM, TokenAdminVM:
		return nil
	case TokenDispVM:
		if !isTarget {
			return fmt.Errorf("%s is only valid as a target", TokenDispVM)
		}
		return nil
	case TokenDefault:
		if !isTarget {
			return fmt.Errorf("%s is only valid as a target", TokenDefault)
		}
		return nil
	}
	for _, prefix := range []string{prefixTag, prefixType, prefixDispVM} {
		if rest, ok := strings.CutPrefix(token, prefix); ok {
			if prefix == prefixDispVM && !isTarget {
				return fmt.Errorf("%s is only valid as a target", token)
			}
			if rest == "" {
				return fmt.Errorf("empty selector in %q", token)
			}
			return nil
		}
	}
	return fmt.Errorf("unknown keyword %q", token)
}

// ValidateSource checks a token for use in source position.
func ValidateSource(token string) error {
	return validateToken(token, false)
}

// ValidateTarget checks a token for use in target position.
func ValidateTarget(token string) error {
	return validateToken(token, true)
}

// IsSelector reports whether a token is a tag or type selector rather than
// a concrete name or a fixed keyword.
func IsSelector(token string) bool {
	return strings.HasPrefix(token, prefixTag) || strings.HasPrefix(token, prefixType)
}

// IsKeyword reports whether a token is any '@' token.
func IsKeyword(token string) bool {
	return strings.HasPrefix(token, "@")
}

// CompareTokens orders tokens for display: concrete names first
// (lexically), then keywords, with @anyvm always last.
func CompareTokens(a, b string) int {
	if a == b {
		return 0
	}
	if a == TokenAnyVM {
		return 1
	}
	if b == TokenAnyVM {
		return -1
	}
	aKw, bKw := IsKeyword(a), IsKeyword(b)
	if aKw == bKw {
		if a < b {
			return -1
		}
		return 1
	}
	if aKw {
		return 1
	}
	return -1
}
