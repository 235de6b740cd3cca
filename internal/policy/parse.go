package policy

import (
	"errors"
	"fmt"
	"strings"
)

// LineKind distinguishes the kinds of lines a policy file can hold.
type LineKind int

const (
	LineRule LineKind = iota
	LineComment
	LineBlank
	// LineRaw is anything that does not match the rule grammar, including
	// directives like !include. Raw lines are preserved verbatim so that
	// hand-edited files are never destroyed on round-trip.
	LineRaw
)

// Line is one line of a policy file.
type Line struct {
	Kind LineKind
	Rule Rule   // valid when Kind == LineRule
	Text string // verbatim text for comment/blank/raw lines
}

// File is an ordered sequence of policy lines.
type File struct {
	Name  string
	Lines []Line
}

// Rules returns the rules of the file in order, skipping pass-through lines.
func (f *File) Rules() []Rule {
	var out []Rule
	for _, line := range f.Lines {
		if line.Kind == LineRule {
			out = append(out, line.Rule)
		}
	}
	return out
}

// String renders the file back to text. Recognized rules are normalized to
// canonical spacing; all other lines are emitted verbatim.
func (f *File) String() string {
	var b strings.Builder
	for _, line := range f.Lines {
		if line.Kind == LineRule {
			b.WriteString(line.Rule.String())
		} else {
			b.WriteString(line.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseError describes a single malformed rule line.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// ErrorList aggregates every parse problem found in one file.
type ErrorList struct {
	Errors []*ParseError
}

func (e *ErrorList) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Parse converts policy file text into an ordered File. Lines that do not
// resemble rules at all become pass-through raw lines. Lines that look like
// rules but carry malformed qualifier syntax are reported as errors and kept
// as raw lines, so serializing the result never loses content.
//
// The returned error, when non-nil, is an *ErrorList.
func Parse(name, text string) (*File, error) {
	file := &File{Name: name}
	var errs ErrorList

	lines := strings.Split(text, "\n")
	// Split leaves one trailing empty element for text ending in newline;
	// that element is an artifact, not a blank line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for i, raw := range lines {
		lineno := i + 1
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == "":
			file.Lines = append(file.Lines, Line{Kind: LineBlank, Text: raw})
		case strings.HasPrefix(trimmed, "#"):
			file.Lines = append(file.Lines, Line{Kind: LineComment, Text: raw})
		default:
			rule, err := ParseRule(trimmed)
			if err == nil {
				file.Lines = append(file.Lines, Line{Kind: LineRule, Rule: rule})
				break
			}
			file.Lines = append(file.Lines, Line{Kind: LineRaw, Text: raw})
			var shapeErr *ruleShapeError
			if !errors.As(err, &shapeErr) {
				// Rule-shaped but malformed: report, do not drop.
				errs.Errors = append(errs.Errors, &ParseError{
					File: name, Line: lineno, Msg: err.Error(),
				})
			}
		}
	}

	if len(errs.Errors) > 0 {
		return file, &errs
	}
	return file, nil
}

// ParseRule parses one rule line in the form
//
//	service argument source target action [param=value ...]
func ParseRule(text string) (Rule, error) {
	fields := strings.Fields(text)
	if len(fields) < 5 {
		return Rule{}, &ruleShapeError{msg: "not a rule: fewer than 5 fields"}
	}
	service, argument, source, target := fields[0], fields[1], fields[2], fields[3]
	action := Action(strings.ToLower(fields[4]))

	perAction, ok := allowedParams[action]
	if !ok {
		return Rule{}, &ruleShapeError{msg: fmt.Sprintf("unknown action %q", fields[4])}
	}

	if service != "*" && !nameRe.MatchString(service) {
		return Rule{}, fmt.Errorf("invalid service name %q", service)
	}
	if argument != "*" && !strings.HasPrefix(argument, "+") {
		return Rule{}, fmt.Errorf("invalid argument %q, expected * or +ARG", argument)
	}
	if err := validateToken(source, false); err != nil {
		return Rule{}, fmt.Errorf("bad source: %w", err)
	}
	if err := validateToken(target, true); err != nil {
		return Rule{}, fmt.Errorf("bad target: %w", err)
	}

	rule := New(service, argument, source, target, action)
	for _, param := range fields[5:] {
		key, value, found := strings.Cut(param, "=")
		if !found || key == "" || value == "" {
			return Rule{}, fmt.Errorf("malformed qualifier %q, expected key=value", param)
		}
		if !perAction[key] {
			return Rule{}, fmt.Errorf("qualifier %q is not valid for action %q", key, action)
		}
		if key == "autostart" || key == "notify" {
			if value != "yes" && value != "no" {
				return Rule{}, fmt.Errorf("qualifier %s must be yes or no, got %q", key, value)
			}
		}
		if _, dup := rule.Params[key]; dup {
			return Rule{}, fmt.Errorf("duplicate qualifier %q", key)
		}
		rule.Params[key] = value
	}

	return rule, nil
}

// ruleShapeError marks lines that do not even resemble a rule; those become
// silent pass-through rather than reported parse problems.
type ruleShapeError struct {
	msg string
}

func (e *ruleShapeError) Error() string { return e.msg }
