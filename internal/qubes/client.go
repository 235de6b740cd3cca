package qubes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

// DefaultSocket is the admin daemon's local socket.
const DefaultSocket = "/var/run/qubesd.sock"

// SocketClient implements Client over the admin daemon's unix socket. One
// request per connection: a qrexec-style header line, then the payload,
// then a half-close; the response is a status byte followed by data.
type SocketClient struct {
	socketPath string
}

// NewSocketClient creates a client for the given socket path, or the
// default when empty.
func NewSocketClient(socketPath string) *SocketClient {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	return &SocketClient{socketPath: socketPath}
}

// APIError is a non-OK response from the admin daemon.
type APIError struct {
	Kind string // exception type reported by the daemon
	Msg  string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("admin API error: %s", e.Kind)
	}
	return fmt.Sprintf("admin API error: %s: %s", e.Kind, e.Msg)
}

// call performs one admin API method call against dest.
func (c *SocketClient) call(ctx context.Context, dest, method, arg string, payload []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to admin daemon: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	header := fmt.Sprintf("%s+%s dom0 name %s\x00", method, arg, dest)
	if _, err := conn.Write([]byte(header)); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return nil, fmt.Errorf("failed to send %s payload: %w", method, err)
		}
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(conn); err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}
	return parseResponse(buf.Bytes())
}

// parseResponse splits the daemon's status byte from the data. Status "0"
// is success; "2" carries a serialized exception.
func parseResponse(raw []byte) ([]byte, error) {
	if len(raw) < 2 || raw[1] != 0 {
		return nil, fmt.Errorf("malformed admin API response (%d bytes)", len(raw))
	}
	status, data := raw[0], raw[2:]
	switch status {
	case '0':
		return data, nil
	case '2':
		parts := strings.SplitN(string(data), "\x00", 4)
		apiErr := &APIError{Kind: parts[0]}
		if len(parts) >= 3 {
			apiErr.Msg = strings.TrimSpace(parts[2])
		}
		return nil, apiErr
	default:
		return nil, fmt.Errorf("unknown admin API status %q", status)
	}
}

func (c *SocketClient) ListQubes(ctx context.Context) ([]Qube, error) {
	data, err := c.call(ctx, AdminQube, "admin.vm.List", "", nil)
	if err != nil {
		return nil, err
	}
	return parseQubeList(string(data))
}

func parseQubeList(text string) ([]Qube, error) {
	var qubes []Qube
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		q := Qube{Name: fields[0]}
		for _, field := range fields[1:] {
			key, value, found := strings.Cut(field, "=")
			if !found {
				return nil, fmt.Errorf("malformed qube list entry %q", line)
			}
			switch key {
			case "class":
				q.Class = value
			case "state":
				q.State = value
			}
		}
		qubes = append(qubes, q)
	}
	sort.Slice(qubes, func(i, j int) bool { return qubes[i].Name < qubes[j].Name })
	return qubes, nil
}

func (c *SocketClient) GetProperty(ctx context.Context, vm, name string) (Property, error) {
	method := "admin.vm.property.Get"
	if vm == AdminQube {
		method = "admin.property.Get"
	}
	data, err := c.call(ctx, vm, method, name, nil)
	if err != nil {
		return Property{}, err
	}
	return parseProperty(string(data))
}

// parseProperty decodes "default={True|False} type=<type> <value>".
func parseProperty(text string) (Property, error) {
	var prop Property
	rest := strings.TrimRight(text, "\n")

	defPart, rest, found := strings.Cut(rest, " ")
	if !found || !strings.HasPrefix(defPart, "default=") {
		return prop, fmt.Errorf("malformed property response %q", text)
	}
	prop.Default = defPart == "default=True"

	typePart, value, _ := strings.Cut(rest, " ")
	if !strings.HasPrefix(typePart, "type=") {
		return prop, fmt.Errorf("malformed property response %q", text)
	}
	prop.Type = strings.TrimPrefix(typePart, "type=")
	prop.Value = value
	return prop, nil
}

func (c *SocketClient) SetProperty(ctx context.Context, vm, name, value string) error {
	method := "admin.vm.property.Set"
	if vm == AdminQube {
		method = "admin.property.Set"
	}
	_, err := c.call(ctx, vm, method, name, []byte(value))
	return err
}

func (c *SocketClient) GetFeature(ctx context.Context, vm, name string) (string, bool, error) {
	data, err := c.call(ctx, vm, "admin.vm.feature.Get", name, nil)
	if err != nil {
		if isFeatureNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func isFeatureNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == "QubesFeatureNotFoundError"
}

func (c *SocketClient) SetFeature(ctx context.Context, vm, name, value string) error {
	_, err := c.call(ctx, vm, "admin.vm.feature.Set", name, []byte(value))
	return err
}

func (c *SocketClient) RemoveFeature(ctx context.Context, vm, name string) error {
	_, err := c.call(ctx, vm, "admin.vm.feature.Remove", name, nil)
	if isFeatureNotFound(err) {
		return nil
	}
	return err
}

func (c *SocketClient) ListTags(ctx context.Context, vm string) ([]string, error) {
	data, err := c.call(ctx, vm, "admin.vm.tag.List", "", nil)
	if err != nil {
		return nil, err
	}
	return splitLines(string(data)), nil
}

func (c *SocketClient) ListLabels(ctx context.Context) ([]string, error) {
	data, err := c.call(ctx, AdminQube, "admin.label.List", "", nil)
	if err != nil {
		return nil, err
	}
	return splitLines(string(data)), nil
}

func (c *SocketClient) ListKernels(ctx context.Context) ([]string, error) {
	data, err := c.call(ctx, AdminQube, "admin.pool.volume.List", "linux-kernel", nil)
	if err != nil {
		return nil, err
	}
	return splitLines(string(data)), nil
}

func (c *SocketClient) ListApplications(ctx context.Context, vm string) ([]string, error) {
	// Available applications are exported by the template as a feature.
	value, set, err := c.GetFeature(ctx, vm, "menu-available-applications")
	if err != nil || !set {
		return nil, err
	}
	return strings.Fields(value), nil
}

func (c *SocketClient) CreateQube(ctx context.Context, spec CreateSpec) error {
	payload := fmt.Sprintf("name=%s label=%s", spec.Name, spec.Label)
	if spec.Pool != "" {
		payload += " pool=" + spec.Pool
	}
	if _, err := c.call(ctx, AdminQube, "admin.vm.Create."+spec.Class, spec.Template, []byte(payload)); err != nil {
		return err
	}
	// Properties are applied one by one after the qube exists.
	names := make([]string, 0, len(spec.Properties))
	for name := range spec.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.SetProperty(ctx, spec.Name, name, spec.Properties[name]); err != nil {
			return fmt.Errorf("qube created but setting %s failed: %w", name, err)
		}
	}
	return nil
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
