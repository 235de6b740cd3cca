package pages

import (
	"context"
	"fmt"
	"sort"

	"qubeconf/internal/qubes"
)

// Global properties edited on the basics page.
const (
	PropDefaultTemplate = "default_template"
	PropDefaultNetVM    = "default_netvm"
	PropDefaultDispVM   = "default_dispvm"
	PropClockVM         = "clockvm"
	PropDefaultKernel   = "default_kernel"
)

var basicsProps = []string{
	PropDefaultTemplate,
	PropDefaultNetVM,
	PropDefaultDispVM,
	PropClockVM,
	PropDefaultKernel,
}

// BasicsPage edits the system-wide defaults through direct admin API
// property reads and writes. Every selection is validated against the
// enumerated system state at the moment it is made.
type BasicsPage struct {
	lifecycle
	client qubes.Client

	qubes        map[string]qubes.Qube
	netProviders map[string]bool
	kernels      []string

	values  map[string]string
	initial map[string]string
}

// NewBasicsPage creates the page; call Load before use.
func NewBasicsPage(client qubes.Client) *BasicsPage {
	return &BasicsPage{
		client:  client,
		values:  map[string]string{},
		initial: map[string]string{},
	}
}

// Name implements Page.
func (p *BasicsPage) Name() string { return "Basics" }

// Load implements Page.
func (p *BasicsPage) Load(ctx context.Context) error {
	all, err := p.client.ListQubes(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate qubes: %w", err)
	}
	p.qubes = map[string]qubes.Qube{}
	p.netProviders = map[string]bool{}
	for _, q := range all {
		p.qubes[q.Name] = q
	}
	for _, q := range all {
		prop, err := p.client.GetProperty(ctx, q.Name, "provides_network")
		if err == nil && prop.Value == "True" {
			p.netProviders[q.Name] = true
		}
	}

	p.kernels, err = p.client.ListKernels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list kernels: %w", err)
	}

	p.values = map[string]string{}
	for _, name := range basicsProps {
		prop, err := p.client.GetProperty(ctx, qubes.AdminQube, name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		p.values[name] = prop.Value
	}
	p.initial = map[string]string{}
	for name, value := range p.values {
		p.initial[name] = value
	}
	return p.advance(EventLoad)
}

// Value returns the current selection for a property.
func (p *BasicsPage) Value(name string) string { return p.values[name] }

// Templates lists the selectable template qubes.
func (p *BasicsPage) Templates() []string {
	var out []string
	for name, q := range p.qubes {
		if q.IsTemplate() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// NetworkQubes lists the qubes that provide network access.
func (p *BasicsPage) NetworkQubes() []string {
	out := make([]string, 0, len(p.netProviders))
	for name := range p.netProviders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Kernels lists the installed kernels.
func (p *BasicsPage) Kernels() []string { return p.kernels }

// Qubes lists every enumerated qube by name.
func (p *BasicsPage) Qubes() []string {
	out := make([]string, 0, len(p.qubes))
	for name := range p.qubes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Set validates and stages a new value for a property. An incompatible
// qube type is rejected here, at selection time.
func (p *BasicsPage) Set(name, value string) error {
	if err := p.validate(name, value); err != nil {
		return err
	}
	if err := p.MarkEditing(); err != nil {
		return err
	}
	p.values[name] = value
	return nil
}

func (p *BasicsPage) validate(name, value string) error {
	switch name {
	case PropDefaultTemplate:
		q, ok := p.qubes[value]
		if !ok {
			return fmt.Errorf("no such qube %q", value)
		}
		if !q.IsTemplate() {
			return fmt.Errorf("%s is a %s, not a template", value, q.Class)
		}
	case PropDefaultNetVM:
		if value == "" {
			return nil
		}
		if !p.netProviders[value] {
			return fmt.Errorf("%q does not provide network access", value)
		}
	case PropDefaultDispVM, PropClockVM:
		if value == "" {
			return nil
		}
		if _, ok := p.qubes[value]; !ok {
			return fmt.Errorf("no such qube %q", value)
		}
	case PropDefaultKernel:
		for _, k := range p.kernels {
			if k == value {
				return nil
			}
		}
		return fmt.Errorf("unknown kernel %q", value)
	default:
		return fmt.Errorf("unknown property %q", name)
	}
	return nil
}

// Save implements Page; only changed properties are written back.
func (p *BasicsPage) Save(ctx context.Context) error {
	if _, err := Next(p.state, EventSave); err != nil {
		return err
	}
	for _, name := range basicsProps {
		if p.values[name] == p.initial[name] {
			continue
		}
		if err := p.client.SetProperty(ctx, qubes.AdminQube, name, p.values[name]); err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
		p.initial[name] = p.values[name]
	}
	p.state = StateSaved
	return nil
}

// Discard implements Page.
func (p *BasicsPage) Discard() {
	next, err := Next(p.state, EventDiscard)
	if err != nil {
		return
	}
	for name, value := range p.initial {
		p.values[name] = value
	}
	p.state = next
}

// Unsaved implements Page.
func (p *BasicsPage) Unsaved() []string {
	var out []string
	for _, name := range basicsProps {
		if p.values[name] != p.initial[name] {
			out = append(out, name)
		}
	}
	return out
}
