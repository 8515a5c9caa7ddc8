// Package format models file-format registry entries and per-package identification results.
package format

import (
	"sort"
	"strings"
)

// Definition is a registry entry for a file format, keyed by its PRONOM identifier.
type Definition struct {
	PUID      string `json:"puid"`
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
	Preferred bool   `json:"preferred"`
}

// Label renders the definition for issue descriptions and logs.
func (d *Definition) Label() string {
	if d == nil {
		return ""
	}
	if d.Name == "" {
		return d.PUID
	}
	if d.Version == "" {
		return d.PUID + " (" + d.Name + ")"
	}
	return d.PUID + " (" + d.Name + " " + d.Version + ")"
}

// Identification is a single format match produced by an identification tool.
type Identification struct {
	PUID   string `json:"puid"`
	Method string `json:"method"`
}

// Result maps a package-relative path to the formats identified for it.
// A path with an empty list was processed but not identified.
type Result map[string][]Identification

// Add appends an identification for path.
func (r Result) Add(path string, id Identification) {
	r[path] = append(r[path], id)
}

// Touch records that path was processed without adding an identification.
func (r Result) Touch(path string) {
	if _, ok := r[path]; !ok {
		r[path] = nil
	}
}

// Paths returns all paths in lexical order.
func (r Result) Paths() []string {
	paths := make([]string, 0, len(r))
	for p := range r {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Unidentified returns paths without any identification, sorted.
func (r Result) Unidentified() []string {
	var paths []string
	for p, ids := range r {
		if len(ids) == 0 {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Ambiguous returns paths identified with more than one distinct PUID, sorted.
func (r Result) Ambiguous() []string {
	var paths []string
	for p, ids := range r {
		if len(distinctPUIDs(ids)) > 1 {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Primary returns the first identification recorded for path.
func (r Result) Primary(path string) (Identification, bool) {
	ids := r[normalize(path)]
	if len(ids) == 0 {
		return Identification{}, false
	}
	return ids[0], true
}

func distinctPUIDs(ids []Identification) map[string]struct{} {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id.PUID] = struct{}{}
	}
	return seen
}

func normalize(path string) string {
	return strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "./")
}
