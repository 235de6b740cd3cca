// Package qubes talks to the admin API of the qube manager daemon. The
// editor treats it as an opaque external service: qube enumeration,
// property and feature access, and qube creation. A socket-backed client
// covers the live system; an in-memory fake backs tests and demos.
package qubes

import "context"

// Qube classes as reported by the admin API.
const (
	ClassAppVM        = "AppVM"
	ClassTemplateVM   = "TemplateVM"
	ClassStandaloneVM = "StandaloneVM"
	ClassDispVM       = "DispVM"
	ClassAdminVM      = "AdminVM"
)

// AdminQube is the name of the administrative qube.
const AdminQube = "dom0"

// Qube is one enumerated qube with the fields the editor cares about.
type Qube struct {
	Name  string
	Class string
	State string
}

// Property is a typed property value. Default reports whether the value is
// inherited rather than explicitly set.
type Property struct {
	Value   string
	Type    string
	Default bool
}

// CreateSpec describes a qube to create.
type CreateSpec struct {
	Name       string
	Class      string
	Label      string
	Template   string            // required for AppVM/DispVM, optional otherwise
	Pool       string            // optional storage pool override
	Properties map[string]string // applied after creation (netvm, memory, ...)
}

// Client is the admin API surface consumed by the editor and the wizard.
// Use vm = AdminQube for global properties.
type Client interface {
	ListQubes(ctx context.Context) ([]Qube, error)
	GetProperty(ctx context.Context, vm, name string) (Property, error)
	SetProperty(ctx context.Context, vm, name, value string) error
	GetFeature(ctx context.Context, vm, name string) (value string, set bool, err error)
	SetFeature(ctx context.Context, vm, name, value string) error
	RemoveFeature(ctx context.Context, vm, name string) error
	ListTags(ctx context.Context, vm string) ([]string, error)
	ListLabels(ctx context.Context) ([]string, error)
	ListKernels(ctx context.Context) ([]string, error)
	ListApplications(ctx context.Context, vm string) ([]string, error)
	CreateQube(ctx context.Context, spec CreateSpec) error
}

// IsTemplate reports whether a qube can be used as a template.
func (q Qube) IsTemplate() bool { return q.Class == ClassTemplateVM }

// IsRunning reports whether the qube is currently running.
func (q Qube) IsRunning() bool { return q.State == "Running" }
