package audit

// Index holds every audit issue keyed by crate name and version.
type Index struct {
	byNameVersion map[nameVersion][]*Issue
	byName        map[string][]*Issue
}

type nameVersion struct {
	name    string
	version string
}

// NewIndex builds the lookup maps from parsed issues.
func NewIndex(issues []*Issue) *Index {
	idx := &Index{
		byNameVersion: make(map[nameVersion][]*Issue),
		byName:        make(map[string][]*Issue),
	}
	for _, issue := range issues {
		key := nameVersion{name: issue.Crate, version: issue.Version}
		idx.byNameVersion[key] = append(idx.byNameVersion[key], issue)
		idx.byName[issue.Crate] = append(idx.byName[issue.Crate], issue)
	}
	return idx
}

// Get returns the issues recorded against one exact (name, version) pair.
func (i *Index) Get(name, version string) []*Issue {
	if i == nil {
		return nil
	}
	return i.byNameVersion[nameVersion{name: name, version: version}]
}

// GetByName returns every issue for a crate across versions.
func (i *Index) GetByName(name string) []*Issue {
	if i == nil {
		return nil
	}
	return i.byName[name]
}

// HasIssues reports whether the index holds anything at all.
func (i *Index) HasIssues() bool {
	return i != nil && len(i.byName) > 0
}

// IsYanked reports whether the pair carries a yanked warning.
func (i *Index) IsYanked(name, version string) bool {
	for _, issue := range i.Get(name, version) {
		if issue.Kind == Yanked {
			return true
		}
	}
	return false
}
