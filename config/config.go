// Package config holds the process-wide configuration snapshot. The
// snapshot is immutable; initialize and didChangeConfiguration swap the
// whole pointer atomically, so readers never see a partial update.
package config

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// AuditLevel selects which audit findings become diagnostics.
type AuditLevel string

const (
	// AuditLevelWarning surfaces every issue, warnings included.
	AuditLevelWarning AuditLevel = "warning"
	// AuditLevelVulnerability surfaces security advisories only.
	AuditLevelVulnerability AuditLevel = "vulnerability"
)

type Audit struct {
	Disabled bool       `json:"disabled"`
	Level    AuditLevel `json:"level"`
}

// Formatter maps each dependency status to its decoration template.
// Templates may use {{installed}}, {{latest_matched}}, {{latest}}, {{ref}}
// and {{commit}}; missing placeholders render as empty.
type Formatter struct {
	Latest              string `json:"latest"`
	Local               string `json:"local"`
	NotInstalled        string `json:"notInstalled"`
	Waiting             string `json:"waiting"`
	MixedUpgradeable    string `json:"mixedUpgradeable"`
	CompatibleLatest    string `json:"compatibleLatest"`
	NoncompatibleLatest string `json:"noncompatibleLatest"`
	Yanked              string `json:"yanked"`
	Git                 string `json:"git"`
}

type Config struct {
	DecorationFormatter Formatter         `json:"decorationFormatter"`
	Audit               Audit             `json:"audit"`
	ExtraEnv            map[string]string `json:"extraEnv"`
	// ServerPath is consumed by the editor extension, not the server; it
	// is decoded here and never read.
	ServerPath string `json:"serverPath"`
}

func Default() *Config {
	return &Config{
		DecorationFormatter: Formatter{
			Latest:              "✅ {{installed}}",
			Local:               "Local",
			NotInstalled:        "Not installed",
			Waiting:             "Waiting...",
			MixedUpgradeable:    "🚀🔒 {{installed}} -> {{latest_matched}},  {{latest}}",
			CompatibleLatest:    "🚀 {{installed}} -> {{latest}}",
			NoncompatibleLatest: "🔒 {{installed}}, {{latest}}",
			Yanked:              "❌ yanked {{installed}}, {{latest_matched}}",
			Git:                 "🐙 {{commit}}",
		},
		Audit: Audit{Level: AuditLevelWarning},
	}
}

// Parse decodes initialization options over the defaults. A nil or empty
// payload yields the defaults unchanged.
func Parse(raw json.RawMessage) (*Config, error) {
	cfg := Default()
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("decoding initialization options: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// fillDefaults restores any template the client sent as empty and clamps
// the audit level to a known value.
func (c *Config) fillDefaults() {
	def := Default()
	f, d := &c.DecorationFormatter, def.DecorationFormatter
	for _, pair := range []struct {
		dst *string
		def string
	}{
		{&f.Latest, d.Latest},
		{&f.Local, d.Local},
		{&f.NotInstalled, d.NotInstalled},
		{&f.Waiting, d.Waiting},
		{&f.MixedUpgradeable, d.MixedUpgradeable},
		{&f.CompatibleLatest, d.CompatibleLatest},
		{&f.NoncompatibleLatest, d.NoncompatibleLatest},
		{&f.Yanked, d.Yanked},
		{&f.Git, d.Git},
	} {
		if *pair.dst == "" {
			*pair.dst = pair.def
		}
	}
	if c.Audit.Level != AuditLevelVulnerability {
		c.Audit.Level = AuditLevelWarning
	}
}

var global atomic.Pointer[Config]

func init() {
	global.Store(Default())
}

// Get returns the current snapshot. The returned value must not be
// mutated.
func Get() *Config { return global.Load() }

// Set swaps in a new snapshot.
func Set(c *Config) { global.Store(c) }
