package render

import (
	"strings"

	"github.com/corymhall/cargo-appraiser/config"
	"github.com/corymhall/cargo-appraiser/parser"
)

// Template is one precompiled decoration template. Placeholder presence is
// cached so formatting skips string scans for placeholders the template
// never uses.
type Template struct {
	text              string
	needsInstalled    bool
	needsLatestMatch  bool
	needsLatest       bool
	needsGitRef       bool
	needsGitCommit    bool
}

func NewTemplate(text string) Template {
	return Template{
		text:             text,
		needsInstalled:   strings.Contains(text, "{{installed}}"),
		needsLatestMatch: strings.Contains(text, "{{latest_matched}}"),
		needsLatest:      strings.Contains(text, "{{latest}}"),
		needsGitRef:      strings.Contains(text, "{{ref}}"),
		needsGitCommit:   strings.Contains(text, "{{commit}}"),
	}
}

func (t Template) Text() string { return t.text }

// Format interpolates the payload. Placeholders with no value render as
// empty strings.
func (t Template) Format(p Payload) string {
	result := t.text
	if t.needsInstalled {
		v := ""
		if p.Installed != nil {
			v = p.Installed.String()
		}
		result = strings.ReplaceAll(result, "{{installed}}", v)
	}
	if t.needsLatestMatch {
		v := ""
		if p.LatestMatched != nil {
			v = p.LatestMatched.String()
		}
		result = strings.ReplaceAll(result, "{{latest_matched}}", v)
	}
	if t.needsLatest {
		v := ""
		if p.Latest != nil {
			v = p.Latest.String()
		}
		result = strings.ReplaceAll(result, "{{latest}}", v)
	}
	if t.needsGitRef {
		result = strings.ReplaceAll(result, "{{ref}}", p.GitRef)
	}
	if t.needsGitCommit {
		result = strings.ReplaceAll(result, "{{commit}}", p.GitCommit)
	}
	if badge := tableBadge(p.Tables); badge != "" {
		result += badge
	}
	return result
}

// tableBadge renders dev/build table membership, e.g. " [dev, build]".
// Plain [dependencies] membership carries no badge.
func tableBadge(tables []parser.Table) string {
	var parts []string
	for _, t := range tables {
		switch t {
		case parser.TableDev:
			parts = append(parts, "dev")
		case parser.TableBuild:
			parts = append(parts, "build")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

// Formatter holds one compiled template per status.
type Formatter struct {
	waiting             Template
	latest              Template
	local               Template
	notInstalled        Template
	mixedUpgradeable    Template
	compatibleLatest    Template
	noncompatibleLatest Template
	yanked              Template
	git                 Template
}

// Compile precompiles the configured template strings.
func Compile(f config.Formatter) *Formatter {
	return &Formatter{
		waiting:             NewTemplate(f.Waiting),
		latest:              NewTemplate(f.Latest),
		local:               NewTemplate(f.Local),
		notInstalled:        NewTemplate(f.NotInstalled),
		mixedUpgradeable:    NewTemplate(f.MixedUpgradeable),
		compatibleLatest:    NewTemplate(f.CompatibleLatest),
		noncompatibleLatest: NewTemplate(f.NoncompatibleLatest),
		yanked:              NewTemplate(f.Yanked),
		git:                 NewTemplate(f.Git),
	}
}

// Format renders the payload with the template its status selects. The
// second return is false for NotParsed, which renders nothing.
func (f *Formatter) Format(p Payload) (string, bool) {
	var t Template
	switch p.Status {
	case Waiting:
		t = f.waiting
	case Latest:
		t = f.latest
	case Local:
		t = f.local
	case NotInstalled:
		t = f.notInstalled
	case MixedUpgradeable:
		t = f.mixedUpgradeable
	case CompatibleLatest:
		t = f.compatibleLatest
	case NonCompatibleLatest:
		t = f.noncompatibleLatest
	case Yanked:
		t = f.yanked
	case Git:
		t = f.git
	default:
		return "", false
	}
	return t.Format(p), true
}
