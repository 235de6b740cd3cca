package qubes

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FakeClient is an in-memory Client for tests and for running the editor
// against a synthetic system.
type FakeClient struct {
	mu         sync.Mutex
	qubes      map[string]Qube
	properties map[string]map[string]Property // vm -> name -> property
	features   map[string]map[string]string
	tags       map[string][]string
	apps       map[string][]string
	labels     []string
	kernels    []string
}

// NewFakeClient creates an empty fake with the standard label set.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		qubes:      map[string]Qube{},
		properties: map[string]map[string]Property{},
		features:   map[string]map[string]string{},
		tags:       map[string][]string{},
		apps:       map[string][]string{},
		labels:     []string{"red", "orange", "yellow", "green", "gray", "blue", "purple", "black"},
		kernels:    []string{"6.6.2", "6.1.1"},
	}
}

// AddQube registers a qube.
func (c *FakeClient) AddQube(q Qube) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qubes[q.Name] = q
	return c
}

// WithProperty presets a property.
func (c *FakeClient) WithProperty(vm, name string, prop Property) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.properties[vm] == nil {
		c.properties[vm] = map[string]Property{}
	}
	c.properties[vm][name] = prop
	return c
}

// WithFeature presets a feature value.
func (c *FakeClient) WithFeature(vm, name, value string) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.features[vm] == nil {
		c.features[vm] = map[string]string{}
	}
	c.features[vm][name] = value
	return c
}

// WithTags presets the tags of a qube.
func (c *FakeClient) WithTags(vm string, tags ...string) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[vm] = tags
	return c
}

// WithApplications presets the application list of a template.
func (c *FakeClient) WithApplications(vm string, apps ...string) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apps[vm] = apps
	return c
}

func (c *FakeClient) ListQubes(_ context.Context) ([]Qube, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Qube, 0, len(c.qubes))
	for _, q := range c.qubes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *FakeClient) requireQube(vm string) error {
	if vm == AdminQube {
		return nil
	}
	if _, ok := c.qubes[vm]; !ok {
		return &APIError{Kind: "QubesNoSuchVMError", Msg: vm}
	}
	return nil
}

func (c *FakeClient) GetProperty(_ context.Context, vm, name string) (Property, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireQube(vm); err != nil {
		return Property{}, err
	}
	prop, ok := c.properties[vm][name]
	if !ok {
		return Property{}, &APIError{Kind: "QubesNoSuchPropertyError", Msg: name}
	}
	return prop, nil
}

func (c *FakeClient) SetProperty(_ context.Context, vm, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireQube(vm); err != nil {
		return err
	}
	if c.properties[vm] == nil {
		c.properties[vm] = map[string]Property{}
	}
	prop := c.properties[vm][name]
	prop.Value = value
	prop.Default = false
	c.properties[vm][name] = prop
	return nil
}

func (c *FakeClient) GetFeature(_ context.Context, vm, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireQube(vm); err != nil {
		return "", false, err
	}
	value, ok := c.features[vm][name]
	return value, ok, nil
}

func (c *FakeClient) SetFeature(_ context.Context, vm, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireQube(vm); err != nil {
		return err
	}
	if c.features[vm] == nil {
		c.features[vm] = map[string]string{}
	}
	c.features[vm][name] = value
	return nil
}

func (c *FakeClient) RemoveFeature(_ context.Context, vm, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireQube(vm); err != nil {
		return err
	}
	delete(c.features[vm], name)
	return nil
}

func (c *FakeClient) ListTags(_ context.Context, vm string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireQube(vm); err != nil {
		return nil, err
	}
	return append([]string(nil), c.tags[vm]...), nil
}

func (c *FakeClient) ListLabels(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.labels...), nil
}

func (c *FakeClient) ListKernels(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.kernels...), nil
}

func (c *FakeClient) ListApplications(_ context.Context, vm string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireQube(vm); err != nil {
		return nil, err
	}
	return append([]string(nil), c.apps[vm]...), nil
}

func (c *FakeClient) CreateQube(_ context.Context, spec CreateSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.qubes[spec.Name]; exists {
		return &APIError{Kind: "QubesVMAlreadyExistsError", Msg: spec.Name}
	}
	if spec.Template != "" {
		template, ok := c.qubes[spec.Template]
		if !ok {
			return &APIError{Kind: "QubesNoSuchVMError", Msg: spec.Template}
		}
		if !template.IsTemplate() && spec.Class != ClassStandaloneVM {
			return &APIError{Kind: "QubesValueError", Msg: fmt.Sprintf("%s is not a template", spec.Template)}
		}
	}
	c.qubes[spec.Name] = Qube{Name: spec.Name, Class: spec.Class, State: "Halted"}
	if c.properties[spec.Name] == nil {
		c.properties[spec.Name] = map[string]Property{}
	}
	c.properties[spec.Name]["label"] = Property{Value: spec.Label, Type: "label"}
	if spec.Template != "" {
		c.properties[spec.Name]["template"] = Property{Value: spec.Template, Type: "vm"}
	}
	for name, value := range spec.Properties {
		c.properties[spec.Name][name] = Property{Value: value}
	}
	return nil
}
