package audit

import (
	"regexp"
	"strings"
)

var (
	treeLineRe = regexp.MustCompile(`^([│\s]*)(?:├──|└──)\s*(\S+)\s+(\S+)`)
	rootLineRe = regexp.MustCompile(`^([a-zA-Z0-9_-]+)\s+(\S+)$`)
)

// ParseOutput parses cargo audit's human-readable text into issues.
// workspaceMembers lets the dependency-tree walk attribute each issue to
// the direct dependency a member reaches it through.
func ParseOutput(stdout string, workspaceMembers []string) []*Issue {
	memberSet := make(map[string]bool, len(workspaceMembers))
	for _, m := range workspaceMembers {
		memberSet[m] = true
	}

	var issues []*Issue
	var current *Issue
	var parsingTree bool
	var currentPath []string

	save := func() {
		if current != nil && current.Crate != "" {
			issues = append(issues, current)
		}
		current = nil
	}

	for _, line := range strings.Split(stdout, "\n") {
		// continuation lines outside a dependency tree carry no fields
		if strings.HasPrefix(line, " ") && !parsingTree {
			continue
		}

		if strings.HasPrefix(line, "Crate:") {
			parsingTree = false
			save()
			current = &Issue{DependencyPaths: map[string][]string{}}
			if _, value, ok := strings.Cut(line, ":"); ok {
				current.Crate = strings.TrimSpace(value)
			}
			continue
		}

		if current != nil {
			if key, value, ok := strings.Cut(line, ":"); ok && !parsingTree {
				v := strings.TrimSpace(value)
				switch key {
				case "Version":
					current.Version = v
					continue
				case "Title":
					current.Title = v
					continue
				case "ID":
					current.ID = v
					continue
				case "URL":
					current.URL = v
					continue
				case "Solution":
					current.Solution = v
					continue
				case "Severity":
					current.Severity = v
					continue
				case "Warning":
					current.Kind = kindFromWarning(v)
					continue
				}
			}
		}

		if strings.HasPrefix(line, "Dependency tree:") {
			parsingTree = true
			currentPath = currentPath[:0]
			continue
		}

		if !parsingTree {
			continue
		}

		if caps := rootLineRe.FindStringSubmatch(strings.TrimSpace(line)); caps != nil {
			// the root line of the tree: the vulnerable crate itself
			currentPath = append(currentPath[:0], caps[1]+" "+caps[2])
			continue
		}
		if caps := treeLineRe.FindStringSubmatch(line); caps != nil {
			indent := len([]rune(caps[1]))
			pkgName, pkgVersion := caps[2], caps[3]

			depth := indent/4 + 1
			if depth < len(currentPath) {
				currentPath = currentPath[:depth]
			}

			if memberSet[pkgName] && current != nil && len(currentPath) > 0 {
				// the entry above the member is its direct dependency on
				// this issue's path
				parent := strings.Fields(currentPath[len(currentPath)-1])
				if len(parent) > 0 {
					path := make([]string, len(currentPath))
					copy(path, currentPath)
					current.DependencyPaths[parent[0]] = path
				}
			}
			currentPath = append(currentPath, pkgName+" "+pkgVersion)
		}
	}

	save()
	return issues
}
