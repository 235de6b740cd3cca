package pages

import (
	"context"
	"fmt"
	"sort"

	"qubeconf/internal/handler"
	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/qubes"
)

// FeatureUpdateCheck is the per-qube feature controlling update
// notifications. Absent means enabled; set to the empty value it disables
// checking for that qube.
const FeatureUpdateCheck = "service.qubes-update-check"

// UpdatesPage combines the update-check feature toggles with the update
// proxy policy handler.
type UpdatesPage struct {
	lifecycle
	client qubes.Client
	proxy  *handler.Handler

	qubes map[string]qubes.Qube

	checkDom0 bool
	disabled  map[string]bool // qubes with update checking turned off

	initialDom0     bool
	initialDisabled map[string]bool
}

// NewUpdatesPage creates the page; call Load before use.
func NewUpdatesPage(client qubes.Client, mgr *manager.Manager) *UpdatesPage {
	return &UpdatesPage{
		client: client,
		proxy: handler.New(mgr, handler.Config{
			Service:       "qubes.UpdatesProxy",
			FileName:      "50-config-updates.policy",
			DefaultPolicy: "qubes.UpdatesProxy\t*\t@type:TemplateVM\t@default\tallow target=sys-net\n",
			ViewKind:      policy.ViewTargeted,
		}),
	}
}

// Name implements Page.
func (p *UpdatesPage) Name() string { return "Updates" }

// Proxy exposes the update proxy policy handler for the editing surface.
func (p *UpdatesPage) Proxy() *handler.Handler { return p.proxy }

// Load implements Page.
func (p *UpdatesPage) Load(ctx context.Context) error {
	all, err := p.client.ListQubes(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate qubes: %w", err)
	}
	p.qubes = map[string]qubes.Qube{}
	p.disabled = map[string]bool{}
	for _, q := range all {
		p.qubes[q.Name] = q
		value, set, err := p.client.GetFeature(ctx, q.Name, FeatureUpdateCheck)
		if err != nil {
			return fmt.Errorf("failed to read update-check feature of %s: %w", q.Name, err)
		}
		if set && value == "" {
			p.disabled[q.Name] = true
		}
	}

	value, set, err := p.client.GetFeature(ctx, qubes.AdminQube, FeatureUpdateCheck)
	if err != nil {
		return fmt.Errorf("failed to read dom0 update-check feature: %w", err)
	}
	p.checkDom0 = !(set && value == "")

	p.initialDom0 = p.checkDom0
	p.initialDisabled = map[string]bool{}
	for name := range p.disabled {
		p.initialDisabled[name] = true
	}

	if err := p.proxy.LoadFromStorage(); err != nil {
		return err
	}
	return p.advance(EventLoad)
}

// CheckDom0 reports whether the admin qube checks for updates.
func (p *UpdatesPage) CheckDom0() bool { return p.checkDom0 }

// QubeCheck reports whether a qube checks for updates.
func (p *UpdatesPage) QubeCheck(name string) bool { return !p.disabled[name] }

// Qubes lists every enumerated qube by name.
func (p *UpdatesPage) Qubes() []string {
	out := make([]string, 0, len(p.qubes))
	for name := range p.qubes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DisabledQubes lists the qubes with update checking turned off.
func (p *UpdatesPage) DisabledQubes() []string {
	out := make([]string, 0, len(p.disabled))
	for name := range p.disabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetCheckDom0 toggles update checking for the admin qube.
func (p *UpdatesPage) SetCheckDom0(enabled bool) error {
	if err := p.MarkEditing(); err != nil {
		return err
	}
	p.checkDom0 = enabled
	return nil
}

// SetQubeCheck toggles update checking for one qube.
func (p *UpdatesPage) SetQubeCheck(name string, enabled bool) error {
	if _, ok := p.qubes[name]; !ok {
		return fmt.Errorf("no such qube %q", name)
	}
	if err := p.MarkEditing(); err != nil {
		return err
	}
	if enabled {
		delete(p.disabled, name)
	} else {
		p.disabled[name] = true
	}
	return nil
}

// Save implements Page.
func (p *UpdatesPage) Save(ctx context.Context) error {
	if _, err := Next(p.state, EventSave); err != nil {
		return err
	}
	if p.checkDom0 != p.initialDom0 {
		if err := p.applyCheck(ctx, qubes.AdminQube, p.checkDom0); err != nil {
			return err
		}
		p.initialDom0 = p.checkDom0
	}
	for name := range p.qubes {
		if p.disabled[name] == p.initialDisabled[name] {
			continue
		}
		if err := p.applyCheck(ctx, name, !p.disabled[name]); err != nil {
			return err
		}
		if p.disabled[name] {
			p.initialDisabled[name] = true
		} else {
			delete(p.initialDisabled, name)
		}
	}
	if err := p.proxy.ApplyToStorage(); err != nil {
		return err
	}
	p.state = StateSaved
	return nil
}

func (p *UpdatesPage) applyCheck(ctx context.Context, vm string, enabled bool) error {
	var err error
	if enabled {
		err = p.client.RemoveFeature(ctx, vm, FeatureUpdateCheck)
	} else {
		err = p.client.SetFeature(ctx, vm, FeatureUpdateCheck, "")
	}
	if err != nil {
		return fmt.Errorf("failed to update check setting of %s: %w", vm, err)
	}
	return nil
}

// Discard implements Page.
func (p *UpdatesPage) Discard() {
	next, err := Next(p.state, EventDiscard)
	if err != nil {
		return
	}
	p.checkDom0 = p.initialDom0
	p.disabled = map[string]bool{}
	for name := range p.initialDisabled {
		p.disabled[name] = true
	}
	p.proxy.Reset()
	p.state = next
}

// Unsaved implements Page.
func (p *UpdatesPage) Unsaved() []string {
	var out []string
	if p.checkDom0 != p.initialDom0 {
		out = append(out, "dom0 update check")
	}
	var names []string
	for name := range p.qubes {
		if p.disabled[name] != p.initialDisabled[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, "update check: "+name)
	}
	if what := p.proxy.UnsavedChanges(); what != "" {
		out = append(out, fmt.Sprintf("%s: %s", p.proxy.FileName(), what))
	}
	return out
}
