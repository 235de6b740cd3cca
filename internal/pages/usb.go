package pages

import (
	"context"
	"fmt"
	"sort"

	"qubeconf/internal/handler"
	"qubeconf/internal/manager"
	"qubeconf/internal/policy"
	"qubeconf/internal/qubes"
	"qubeconf/internal/store"
)

// FeatureU2FProxy enables the U2F proxy service in a qube.
const FeatureU2FProxy = "service.qubes-u2f-proxy"

// DefaultUSBQube is the conventional name of the USB-handling qube.
const DefaultUSBQube = "sys-usb"

var inputServices = []string{
	"qubes.InputKeyboard",
	"qubes.InputMouse",
	"qubes.InputTablet",
}

// USBPage manages the input-device policy, the U2F policy file and the
// per-qube U2F proxy feature. Its two policy files are saved as a single
// transaction.
type USBPage struct {
	lifecycle
	client  qubes.Client
	mgr     *manager.Manager
	usbQube string

	input *handler.FixedHandler
	u2f   *handler.Handler

	qubes      map[string]qubes.Qube
	u2fEnabled map[string]bool
	initialU2F map[string]bool
}

// NewUSBPage creates the page for the given USB qube; an empty name means
// the conventional sys-usb.
func NewUSBPage(client qubes.Client, mgr *manager.Manager, usbQube string) *USBPage {
	if usbQube == "" {
		usbQube = DefaultUSBQube
	}
	return &USBPage{
		client:  client,
		mgr:     mgr,
		usbQube: usbQube,
		input:   handler.NewFixed(mgr, "50-config-input.policy", inputServices, usbQube, policy.TokenAdminVM),
		u2f: handler.New(mgr, handler.Config{
			Service:       "u2f.Authenticate",
			FileName:      "50-config-u2f.policy",
			DefaultPolicy: fmt.Sprintf("u2f.Authenticate\t*\t@anyvm\t%s\tdeny\n", usbQube),
			ViewKind:      policy.ViewSimple,
		}),
	}
}

// Name implements Page.
func (p *USBPage) Name() string { return "USB Devices" }

// Input exposes the input-device handler for the editing surface.
func (p *USBPage) Input() *handler.FixedHandler { return p.input }

// U2F exposes the U2F policy handler for the editing surface.
func (p *USBPage) U2F() *handler.Handler { return p.u2f }

// Load implements Page.
func (p *USBPage) Load(ctx context.Context) error {
	all, err := p.client.ListQubes(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate qubes: %w", err)
	}
	p.qubes = map[string]qubes.Qube{}
	p.u2fEnabled = map[string]bool{}
	for _, q := range all {
		p.qubes[q.Name] = q
		value, set, err := p.client.GetFeature(ctx, q.Name, FeatureU2FProxy)
		if err != nil {
			return fmt.Errorf("failed to read U2F feature of %s: %w", q.Name, err)
		}
		if set && value != "" {
			p.u2fEnabled[q.Name] = true
		}
	}
	p.initialU2F = map[string]bool{}
	for name := range p.u2fEnabled {
		p.initialU2F[name] = true
	}

	if err := p.input.LoadFromStorage(); err != nil {
		return err
	}
	if err := p.u2f.LoadFromStorage(); err != nil {
		return err
	}
	return p.advance(EventLoad)
}

// U2FEnabled reports whether a qube has the U2F proxy turned on.
func (p *USBPage) U2FEnabled(name string) bool { return p.u2fEnabled[name] }

// U2FQubes lists the qubes with the U2F proxy turned on.
func (p *USBPage) U2FQubes() []string {
	out := make([]string, 0, len(p.u2fEnabled))
	for name := range p.u2fEnabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetU2F toggles the U2F proxy for one qube.
func (p *USBPage) SetU2F(name string, enabled bool) error {
	if _, ok := p.qubes[name]; !ok {
		return fmt.Errorf("no such qube %q", name)
	}
	if err := p.MarkEditing(); err != nil {
		return err
	}
	if enabled {
		p.u2fEnabled[name] = true
	} else {
		delete(p.u2fEnabled, name)
	}
	return nil
}

// Save implements Page. Both policy files land together or not at all.
func (p *USBPage) Save(ctx context.Context) error {
	if _, err := Next(p.state, EventSave); err != nil {
		return err
	}
	updates := []store.Update{p.input.StagedUpdate(), p.u2f.StagedUpdate()}
	if err := p.mgr.Store().ReplaceAll(updates); err != nil {
		return err
	}
	if err := p.input.MarkSaved(); err != nil {
		return err
	}
	if err := p.u2f.MarkSaved(); err != nil {
		return err
	}

	for name := range p.qubes {
		if p.u2fEnabled[name] == p.initialU2F[name] {
			continue
		}
		var err error
		if p.u2fEnabled[name] {
			err = p.client.SetFeature(ctx, name, FeatureU2FProxy, "1")
		} else {
			err = p.client.RemoveFeature(ctx, name, FeatureU2FProxy)
		}
		if err != nil {
			return fmt.Errorf("failed to update U2F feature of %s: %w", name, err)
		}
		if p.u2fEnabled[name] {
			p.initialU2F[name] = true
		} else {
			delete(p.initialU2F, name)
		}
	}
	p.state = StateSaved
	return nil
}

// Discard implements Page.
func (p *USBPage) Discard() {
	next, err := Next(p.state, EventDiscard)
	if err != nil {
		return
	}
	p.input.Reset()
	p.u2f.Reset()
	p.u2fEnabled = map[string]bool{}
	for name := range p.initialU2F {
		p.u2fEnabled[name] = true
	}
	p.state = next
}

// Unsaved implements Page.
func (p *USBPage) Unsaved() []string {
	var out []string
	for _, service := range p.input.UnsavedChanges() {
		out = append(out, fmt.Sprintf("%s: %s", p.input.FileName(), service))
	}
	if what := p.u2f.UnsavedChanges(); what != "" {
		out = append(out, fmt.Sprintf("%s: %s", p.u2f.FileName(), what))
	}
	var names []string
	for name := range p.qubes {
		if p.u2fEnabled[name] != p.initialU2F[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, "U2F proxy: "+name)
	}
	return out
}
