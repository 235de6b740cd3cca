package policy

// View presents a rule as displayable (source, target, action) strings and
// applies edits back onto the underlying rule. Different policy domains fold
// qualifier parameters into the displayed target differently; the view hides
// that from the editing surface.
type View interface {
	Source() string
	SetSource(string)
	Target() string
	SetTarget(string)
	Action() Action
	SetAction(Action)
	// Rule returns the underlying rule with any edits applied.
	Rule() Rule
	// ActionLabels maps actions to the phrasing shown in the editor,
	// e.g. allow -> "always".
	ActionLabels() map[Action]string
}

// SimpleView shows the rule exactly as written: target is the literal target
// token and the action carries no parameters.
type SimpleView struct {
	rule   Rule
	labels map[Action]string
}

// NewSimpleView wraps a rule for direct display.
func NewSimpleView(rule Rule) *SimpleView {
	return &SimpleView{
		rule: rule.Clone(),
		labels: map[Action]string{
			Ask:   "ask",
			Allow: "always",
			Deny:  "never",
		},
	}
}

// NewAskIsAllowView is a SimpleView for domains where "ask" is the strongest
// permitted state, so the editor only offers ask and deny.
func NewAskIsAllowView(rule Rule) *SimpleView {
	return &SimpleView{
		rule: rule.Clone(),
		labels: map[Action]string{
			Ask:  "always",
			Deny: "never",
		},
	}
}

func (v *SimpleView) Source() string                  { return v.rule.Source }
func (v *SimpleView) SetSource(s string)              { v.rule.Source = s }
func (v *SimpleView) Target() string                  { return v.rule.Target }
func (v *SimpleView) SetTarget(t string)              { v.rule.Target = t }
func (v *SimpleView) Action() Action                  { return v.rule.Action }
func (v *SimpleView) SetAction(a Action)              { v.rule.Action = a; v.rule.Params = map[string]string{} }
func (v *SimpleView) Rule() Rule                      { return v.rule.Clone() }
func (v *SimpleView) ActionLabels() map[Action]string { return v.labels }

// TargetedView presents redirection rules: for allow the effective target is
// the target= parameter, for ask it is default_target=, in both cases with
// the literal target left as @default. Deny shows the literal target.
type TargetedView struct {
	rule Rule
}

// NewTargetedView wraps a rule whose target may be folded into action
// parameters.
func NewTargetedView(rule Rule) *TargetedView {
	return &TargetedView{rule: rule.Clone()}
}

func (v *TargetedView) Source() string     { return v.rule.Source }
func (v *TargetedView) SetSource(s string) { v.rule.Source = s }

func (v *TargetedView) Target() string {
	if v.rule.Target == TokenDefault {
		switch v.rule.Action {
		case Ask:
			if t := v.rule.Param("default_target"); t != "" {
				return t
			}
		case Allow:
			if t := v.rule.Param("target"); t != "" {
				return t
			}
		}
	}
	return v.rule.Target
}

func (v *TargetedView) SetTarget(target string) {
	if IsKeyword(target) {
		v.rule.Target = target
		v.rule.SetParam("target", "")
		v.rule.SetParam("default_target", "")
		return
	}
	switch v.rule.Action {
	case Ask:
		v.rule.Target = TokenDefault
		v.rule.SetParam("default_target", target)
	case Allow:
		v.rule.Target = TokenDefault
		v.rule.SetParam("target", target)
	default:
		v.rule.Target = target
	}
}

func (v *TargetedView) Action() Action { return v.rule.Action }

// SetAction re-folds the displayed target under the new action's parameter
// convention.
func (v *TargetedView) SetAction(a Action) {
	target := v.Target()
	v.rule.Action = a
	v.rule.Params = map[string]string{}
	v.SetTarget(target)
}

func (v *TargetedView) Rule() Rule { return v.rule.Clone() }

func (v *TargetedView) ActionLabels() map[Action]string {
	return map[Action]string{
		Ask:   "ask",
		Allow: "automatically",
		Deny:  "never",
	}
}

// ViewKind selects how a handler wraps its rules.
type ViewKind int

const (
	ViewSimple ViewKind = iota
	ViewAskIsAllow
	ViewTargeted
)

// WrapRule builds the view matching the kind.
func WrapRule(kind ViewKind, rule Rule) View {
	switch kind {
	case ViewAskIsAllow:
		return NewAskIsAllowView(rule)
	case ViewTargeted:
		return NewTargetedView(rule)
	default:
		return NewSimpleView(rule)
	}
}
