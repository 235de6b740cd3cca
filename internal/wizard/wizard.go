// Package wizard drives new-qube creation: it holds the form state behind
// the creation flow, validates every choice at selection time, and turns a
// completed form into admin API calls.
package wizard

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"qubeconf/internal/preconfig"
	"qubeconf/internal/qubes"
)

// NetworkMode selects how the new qube reaches the network.
type NetworkMode string

const (
	// NetworkDefault inherits the system default netvm.
	NetworkDefault NetworkMode = "default"
	// NetworkNone disconnects the qube.
	NetworkNone NetworkMode = "none"
	// NetworkCustom routes through an explicitly chosen qube.
	NetworkCustom NetworkMode = "custom"
)

var qubeNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,30}$`)

// Form is the in-memory state of the new-qube wizard. Every setter
// validates immediately; an invalid choice is rejected at the point of
// selection, never deferred to creation time.
type Form struct {
	client qubes.Client

	existing  map[string]qubes.Qube
	templates []string
	labels    []string
	netQubes  []string

	name         string
	class        string
	label        string
	template     string
	networkMode  NetworkMode
	netQube      string
	applications []string
	preset       *preconfig.Preset
}

// NewForm creates an empty form; call Load before use.
func NewForm(client qubes.Client) *Form {
	return &Form{
		client:      client,
		class:       qubes.ClassAppVM,
		networkMode: NetworkDefault,
		existing:    map[string]qubes.Qube{},
	}
}

// Load fetches the choice lists from the admin API: existing qubes,
// templates, labels and network providers.
func (f *Form) Load(ctx context.Context) error {
	all, err := f.client.ListQubes(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate qubes: %w", err)
	}
	f.existing = map[string]qubes.Qube{}
	f.templates = nil
	f.netQubes = nil
	for _, q := range all {
		f.existing[q.Name] = q
		if q.IsTemplate() {
			f.templates = append(f.templates, q.Name)
		}
	}
	sort.Strings(f.templates)

	for _, q := range all {
		prop, err := f.client.GetProperty(ctx, q.Name, "provides_network")
		if err != nil {
			continue
		}
		if prop.Value == "True" {
			f.netQubes = append(f.netQubes, q.Name)
		}
	}
	sort.Strings(f.netQubes)

	f.labels, err = f.client.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}
	return nil
}

// Templates lists the selectable template qubes.
func (f *Form) Templates() []string { return f.templates }

// Labels lists the selectable labels.
func (f *Form) Labels() []string { return f.labels }

// NetworkQubes lists qubes that provide network access.
func (f *Form) NetworkQubes() []string { return f.netQubes }

// SetName validates and stores the qube name. Collisions with existing
// qubes are rejected here, not at creation time.
func (f *Form) SetName(name string) error {
	if !qubeNameRe.MatchString(name) {
		return fmt.Errorf("invalid qube name %q", name)
	}
	if _, ok := f.existing[name]; ok {
		return fmt.Errorf("a qube named %q already exists", name)
	}
	f.name = name
	return nil
}

// Name returns the chosen name.
func (f *Form) Name() string { return f.name }

// SetClass selects the qube class. Switching to a class that cannot use
// the currently selected template clears the template choice.
func (f *Form) SetClass(class string) error {
	switch class {
	case qubes.ClassAppVM, qubes.ClassStandaloneVM, qubes.ClassTemplateVM, qubes.ClassDispVM:
	default:
		return fmt.Errorf("unknown qube class %q", class)
	}
	f.class = class
	if f.template != "" {
		if err := f.checkTemplate(f.template); err != nil {
			f.template = ""
		}
	}
	return nil
}

// Class returns the chosen class.
func (f *Form) Class() string { return f.class }

// SetTemplate validates the template against the chosen class.
func (f *Form) SetTemplate(template string) error {
	if err := f.checkTemplate(template); err != nil {
		return err
	}
	f.template = template
	return nil
}

// Template returns the chosen template.
func (f *Form) Template() string { return f.template }

func (f *Form) checkTemplate(template string) error {
	if template == "" {
		if f.class == qubes.ClassAppVM || f.class == qubes.ClassDispVM {
			return fmt.Errorf("class %s requires a template", f.class)
		}
		return nil
	}
	q, ok := f.existing[template]
	if !ok {
		return fmt.Errorf("no such qube %q", template)
	}
	if !q.IsTemplate() {
		return fmt.Errorf("%s is a %s, not a template", template, q.Class)
	}
	return nil
}

// SetLabel validates the label against the system list.
func (f *Form) SetLabel(label string) error {
	for _, l := range f.labels {
		if l == label {
			f.label = label
			return nil
		}
	}
	return fmt.Errorf("unknown label %q", label)
}

// Label returns the chosen label.
func (f *Form) Label() string { return f.label }

// SetNetwork selects the network mode. NetworkCustom requires a qube that
// provides network access.
func (f *Form) SetNetwork(mode NetworkMode, netQube string) error {
	switch mode {
	case NetworkDefault, NetworkNone:
		f.networkMode = mode
		f.netQube = ""
		return nil
	case NetworkCustom:
		for _, name := range f.netQubes {
			if name == netQube {
				f.networkMode = mode
				f.netQube = netQube
				return nil
			}
		}
		return fmt.Errorf("%q does not provide network access", netQube)
	}
	return fmt.Errorf("unknown network mode %q", mode)
}

// Network returns the chosen mode and, for NetworkCustom, the qube.
func (f *Form) Network() (NetworkMode, string) { return f.networkMode, f.netQube }

// SetApplications stores the applications to expose in the qube's menu.
func (f *Form) SetApplications(apps []string) {
	f.applications = append([]string(nil), apps...)
}

// Applications returns the applications to expose in the qube's menu.
func (f *Form) Applications() []string {
	return append([]string(nil), f.applications...)
}

// ApplyPreset fills the form from a validated preconfiguration preset.
func (f *Form) ApplyPreset(p preconfig.Preset) error {
	if err := f.SetName(p.Name); err != nil {
		return err
	}
	f.preset = &p
	return nil
}

// Preset returns the applied preset, or nil.
func (f *Form) Preset() *preconfig.Preset { return f.preset }

// Complete reports whether every required choice has been made.
func (f *Form) Complete() error {
	if f.name == "" {
		return fmt.Errorf("qube name not chosen")
	}
	if f.label == "" {
		return fmt.Errorf("label not chosen")
	}
	return f.checkTemplate(f.template)
}

// Create builds the qube through the admin API and applies the selected
// applications to its menu.
func (f *Form) Create(ctx context.Context) error {
	if err := f.Complete(); err != nil {
		return err
	}
	spec := qubes.CreateSpec{
		Name:     f.name,
		Class:    f.class,
		Label:    f.label,
		Template: f.template,
	}
	switch f.networkMode {
	case NetworkNone:
		spec.Properties = map[string]string{"netvm": ""}
	case NetworkCustom:
		spec.Properties = map[string]string{"netvm": f.netQube}
	}
	if err := f.client.CreateQube(ctx, spec); err != nil {
		return fmt.Errorf("failed to create qube %s: %w", f.name, err)
	}

	if len(f.applications) > 0 {
		value := ""
		for _, app := range f.applications {
			value += app + "\n"
		}
		if err := f.client.SetFeature(ctx, f.name, "menu-items", value); err != nil {
			return fmt.Errorf("qube %s created, but menu setup failed: %w", f.name, err)
		}
	}
	return nil
}
