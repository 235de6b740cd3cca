// Package preconfig loads and validates preconfiguration documents: a
// preset list consumed by the new-qube wizard, plus optional network and
// VPN default sections.
package preconfig

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MinIconSize is the minimum width and height of a preset icon.
const MinIconSize = 32

// Preset is one entry of the presets list. Name, Subtitle and Salt are
// required; a missing field rejects the entry, it is never defaulted.
type Preset struct {
	Name     string `yaml:"name"`
	Subtitle string `yaml:"subtitle"`
	Salt     string `yaml:"salt"`
	Icon     string `yaml:"icon,omitempty"`
}

// NetworkDefaults is the optional top-level network section.
type NetworkDefaults struct {
	EnableWifi  bool `yaml:"enable_wifi"`
	EnableWired bool `yaml:"enable_wired"`
}

// VPNDefaults is the optional top-level vpn section.
type VPNDefaults struct {
	EnableVPN bool `yaml:"enable_vpn"`
}

// Document is a validated preconfiguration document. Presets holds only
// the entries that passed validation.
type Document struct {
	Presets []Preset
	Network *NetworkDefaults
	VPN     *VPNDefaults
}

// Problem describes why a preset entry was rejected.
type Problem struct {
	Index int    // position in the presets list
	Name  string // preset name, when known
	Msg   string
}

func (p Problem) String() string {
	if p.Name != "" {
		return fmt.Sprintf("preset %q (entry %d): %s", p.Name, p.Index+1, p.Msg)
	}
	return fmt.Sprintf("entry %d: %s", p.Index+1, p.Msg)
}

// rawDocument defers preset decoding so one malformed entry does not take
// the rest of the list down with it.
type rawDocument struct {
	Presets []yaml.Node      `yaml:"presets"`
	Network *NetworkDefaults `yaml:"network"`
	VPN     *VPNDefaults     `yaml:"vpn"`
}

// Load reads and validates a preconfiguration document. Entries that fail
// validation are dropped and reported as problems; the remaining valid
// entries survive. A non-nil error means the document itself could not be
// read or parsed.
func Load(path string) (*Document, []Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Parse(data, filepath.Dir(path))
}

// Parse validates a document from raw bytes. Relative icon paths resolve
// against baseDir.
func Parse(data []byte, baseDir string) (*Document, []Problem, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse preconfiguration document: %w", err)
	}

	doc := &Document{Network: raw.Network, VPN: raw.VPN}
	var problems []Problem
	seen := map[string]bool{}
	for i, node := range raw.Presets {
		var preset Preset
		if err := node.Decode(&preset); err != nil {
			problems = append(problems, Problem{Index: i, Msg: err.Error()})
			continue
		}
		if msg := validatePreset(preset, baseDir); msg != "" {
			problems = append(problems, Problem{Index: i, Name: preset.Name, Msg: msg})
			continue
		}
		if seen[preset.Name] {
			problems = append(problems, Problem{Index: i, Name: preset.Name, Msg: "duplicate preset name"})
			continue
		}
		seen[preset.Name] = true
		doc.Presets = append(doc.Presets, preset)
	}
	return doc, problems, nil
}

func validatePreset(p Preset, baseDir string) string {
	if p.Name == "" {
		return "missing required field name"
	}
	if p.Subtitle == "" {
		return "missing required field subtitle"
	}
	if p.Salt == "" {
		return "missing required field salt"
	}
	if p.Icon != "" {
		return validateIcon(p.Icon, baseDir)
	}
	return ""
}

func validateIcon(icon, baseDir string) string {
	path := icon
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("icon %s: %v", icon, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Sprintf("icon %s is not a recognized image: %v", icon, err)
	}
	if cfg.Width < MinIconSize || cfg.Height < MinIconSize {
		return fmt.Sprintf("icon %s is %dx%d, below the required %dx%d",
			icon, cfg.Width, cfg.Height, MinIconSize, MinIconSize)
	}
	return ""
}
