package ui

import (
	"fmt"
	"strings"

	"qubeconf/internal/handler"
	"qubeconf/internal/pages"
	"qubeconf/internal/policy"
)

type itemKind int

const (
	itemHeading itemKind = iota
	itemNote
	itemSetting // picker-backed value
	itemToggle  // checkbox
	itemCycle   // per-service action on a fixed handler
	itemRule    // structured rule row
	itemCustom  // custom-mode checkbox for a handler
)

// listItem is one cursor-addressable line of the active page.
type listItem struct {
	kind  itemKind
	label string
	value string

	// setting
	options []string
	apply   func(string) error

	// toggle
	on  bool
	set func(bool) error

	// cycle
	fixed   *handler.FixedHandler
	service string

	// rule and custom
	h   *handler.Handler
	row *handler.Row
}

func (it listItem) selectable() bool {
	return it.kind != itemHeading && it.kind != itemNote
}

// buildItems flattens the active page into cursor-addressable lines.
func buildItems(p pages.Page) []listItem {
	switch pg := p.(type) {
	case *pages.BasicsPage:
		return basicsItems(pg)
	case *pages.UpdatesPage:
		return updatesItems(pg)
	case *pages.USBPage:
		return usbItems(pg)
	case *pages.HandlerPage:
		var items []listItem
		for _, h := range pg.Handlers() {
			items = append(items, handlerItems(h)...)
		}
		return items
	}
	return nil
}

func basicsItems(p *pages.BasicsPage) []listItem {
	withNone := func(opts []string) []string {
		return append([]string{""}, opts...)
	}
	return []listItem{
		{kind: itemHeading, label: "Global defaults"},
		{
			kind: itemSetting, label: "Default template",
			value:   p.Value(pages.PropDefaultTemplate),
			options: p.Templates(),
			apply:   func(v string) error { return p.Set(pages.PropDefaultTemplate, v) },
		},
		{
			kind: itemSetting, label: "Default network qube",
			value:   p.Value(pages.PropDefaultNetVM),
			options: withNone(p.NetworkQubes()),
			apply:   func(v string) error { return p.Set(pages.PropDefaultNetVM, v) },
		},
		{
			kind: itemSetting, label: "Default disposable template",
			value:   p.Value(pages.PropDefaultDispVM),
			options: withNone(p.Qubes()),
			apply:   func(v string) error { return p.Set(pages.PropDefaultDispVM, v) },
		},
		{
			kind: itemSetting, label: "Clock qube",
			value:   p.Value(pages.PropClockVM),
			options: withNone(p.Qubes()),
			apply:   func(v string) error { return p.Set(pages.PropClockVM, v) },
		},
		{
			kind: itemSetting, label: "Default kernel",
			value:   p.Value(pages.PropDefaultKernel),
			options: p.Kernels(),
			apply:   func(v string) error { return p.Set(pages.PropDefaultKernel, v) },
		},
	}
}

func updatesItems(p *pages.UpdatesPage) []listItem {
	items := []listItem{
		{kind: itemHeading, label: "Update checks"},
		{
			kind: itemToggle, label: "Check for dom0 updates",
			on:  p.CheckDom0(),
			set: p.SetCheckDom0,
		},
	}
	for _, name := range p.Qubes() {
		q := name
		items = append(items, listItem{
			kind: itemToggle, label: "Check updates: " + q,
			on:  p.QubeCheck(q),
			set: func(enabled bool) error { return p.SetQubeCheck(q, enabled) },
		})
	}
	items = append(items, listItem{kind: itemHeading, label: "Update proxy policy"})
	items = append(items, handlerItems(p.Proxy())...)
	return items
}

func usbItems(p *pages.USBPage) []listItem {
	items := []listItem{
		{kind: itemHeading, label: "Input device forwarding"},
	}
	input := p.Input()
	for _, svc := range input.Services() {
		items = append(items, listItem{
			kind:    itemCycle,
			label:   serviceLabel(svc),
			value:   string(input.Action(svc)),
			fixed:   input,
			service: svc,
		})
	}
	for _, warning := range input.Warnings() {
		items = append(items, listItem{kind: itemNote, label: warning})
	}

	items = append(items, listItem{kind: itemHeading, label: "U2F proxy"})
	for _, name := range p.U2FQubes() {
		q := name
		items = append(items, listItem{
			kind: itemToggle, label: "Enable U2F proxy: " + q,
			on:  p.U2FEnabled(q),
			set: func(enabled bool) error { return p.SetU2F(q, enabled) },
		})
	}
	items = append(items, listItem{kind: itemHeading, label: "U2F policy"})
	items = append(items, handlerItems(p.U2F())...)
	return items
}

func handlerItems(h *handler.Handler) []listItem {
	items := []listItem{
		{
			kind: itemCustom, label: "Use custom policy",
			h:  h,
			on: h.CustomEnabled(),
		},
	}
	for _, file := range h.Conflicts() {
		items = append(items, listItem{
			kind:  itemNote,
			label: fmt.Sprintf("overridden by %s for %s", file, h.Service()),
		})
	}
	if problems := h.LoadProblems(); problems != nil {
		items = append(items, listItem{kind: itemNote, label: problems.Error()})
	}

	if primary := h.Primary(); len(primary) > 0 {
		items = append(items, listItem{kind: itemHeading, label: "Default rules"})
		for _, row := range primary {
			items = append(items, ruleItem(h, row))
		}
	}
	items = append(items, listItem{kind: itemHeading, label: "Exceptions"})
	if len(h.Exceptions()) == 0 {
		items = append(items, listItem{kind: itemNote, label: "(none; press a to add)"})
	}
	for _, row := range h.Exceptions() {
		items = append(items, ruleItem(h, row))
	}
	return items
}

func ruleItem(h *handler.Handler, row *handler.Row) listItem {
	return listItem{
		kind:  itemRule,
		label: ruleLabel(row),
		h:     h,
		row:   row,
	}
}

func ruleLabel(row *handler.Row) string {
	action := row.View.ActionLabels()[row.View.Action()]
	if action == "" {
		action = string(row.View.Action())
	}
	icon := ActionIcons[string(row.View.Action())]
	return fmt.Sprintf("%s %-20s → %-20s %s", icon, row.View.Source(), row.View.Target(), action)
}

// serviceLabel turns a qrexec service name into a short display name.
func serviceLabel(service string) string {
	name := service
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// nextAction maps a policy action to its successor in the cycle order.
func nextAction(a policy.Action) policy.Action {
	for i, cur := range actionOrder {
		if cur == a {
			return actionOrder[(i+1)%len(actionOrder)]
		}
	}
	return policy.Deny
}
