package render

import (
	"github.com/Masterminds/semver/v3"
	"github.com/corymhall/cargo-appraiser/cargo"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/parser"
)

// Status is the reconciled verdict for one dependency.
type Status int

const (
	// NotParsed means the record could not be judged (no version data).
	NotParsed Status = iota
	// Waiting means a resolution for this entry is still in flight.
	Waiting
	Local
	Git
	NotInstalled
	Yanked
	Latest
	CompatibleLatest
	MixedUpgradeable
	NonCompatibleLatest
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Local:
		return "local"
	case Git:
		return "git"
	case NotInstalled:
		return "notInstalled"
	case Yanked:
		return "yanked"
	case Latest:
		return "latest"
	case CompatibleLatest:
		return "compatibleLatest"
	case MixedUpgradeable:
		return "mixedUpgradeable"
	case NonCompatibleLatest:
		return "nonCompatibleLatest"
	default:
		return "notParsed"
	}
}

// DecorationKind maps a status to the wire name the editor extension
// understands.
func (s Status) DecorationKind() lsp.DecorationKind {
	switch s {
	case Waiting:
		return lsp.DecorationWaiting
	case Local:
		return lsp.DecorationLocal
	case Git:
		return lsp.DecorationGit
	case NotInstalled:
		return lsp.DecorationNotInstalled
	case Yanked:
		return lsp.DecorationYanked
	case Latest:
		return lsp.DecorationLatest
	case CompatibleLatest:
		return lsp.DecorationCompatibleLatest
	case MixedUpgradeable:
		return lsp.DecorationMixedUpgradeable
	case NonCompatibleLatest:
		return lsp.DecorationNonCompatibleLatest
	default:
		return lsp.DecorationNotParsed
	}
}

// Payload carries everything a decoration template can interpolate.
type Payload struct {
	Status        Status
	Installed     *semver.Version
	LatestMatched *semver.Version
	Latest        *semver.Version
	GitRef        string
	GitCommit     string
	// Tables lists every dependency table the crate appears in; dev and
	// build membership renders as a badge suffix.
	Tables []parser.Table
}

// Compute applies the status decision table, first match wins: source kind
// first, then in-flight state, then the version comparison ladder.
func Compute(dep *parser.Dependency, resolved *cargo.Resolved, pending, auditYanked bool) Payload {
	switch dep.Source.Kind {
	case parser.SourcePath:
		return Payload{Status: Local}
	case parser.SourceGit:
		p := Payload{Status: Git, GitRef: dep.Source.Ref}
		if resolved != nil && resolved.Package != nil {
			if src := resolved.Package.Source; src.Kind == cargo.PackageGit {
				if src.Ref != "" {
					p.GitRef = src.Ref
				}
				p.GitCommit = src.ShortCommit()
			}
		}
		return p
	}

	if pending {
		return Payload{Status: Waiting}
	}
	if resolved == nil || resolved.Package == nil {
		return Payload{Status: NotInstalled}
	}

	// a path or git package can still arrive through a workspace-inherited
	// entry whose manifest side carries no source
	switch resolved.Package.Source.Kind {
	case cargo.PackagePath:
		return Payload{Status: Local}
	case cargo.PackageGit:
		return Payload{
			Status:    Git,
			GitRef:    resolved.Package.Source.Ref,
			GitCommit: resolved.Package.Source.ShortCommit(),
		}
	}

	p := Payload{
		Installed:     resolved.Package.Version,
		LatestMatched: resolved.LatestMatched,
		Latest:        resolved.Latest,
	}
	switch {
	case auditYanked || resolved.Yanked:
		p.Status = Yanked
	case resolved.IsLatest():
		p.Status = Latest
	case resolved.HasCompatibleUpgrade() && !resolved.HasIncompatibleLatest():
		p.Status = CompatibleLatest
	case resolved.HasCompatibleUpgrade() && resolved.HasIncompatibleLatest():
		p.Status = MixedUpgradeable
	case resolved.HasIncompatibleLatest():
		p.Status = NonCompatibleLatest
	default:
		p.Status = NotParsed
	}
	return p
}
