// Package docs serves the operator-facing documentation catalog backing
// the `docs.list`/`docs.get` methods: short markdown notes describing the
// method catalog, hook policy set, and operator runbook, for consumption
// by the out-of-scope web dashboard (spec.md §1). Grounded on the
// teacher's internal/templates/agents package shape (an embedded default
// set of named text assets with a Load-by-name accessor), adapted from a
// single default template to a small named catalog.
package docs

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed content
var content embed.FS

// Doc is one named documentation entry.
type Doc struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Content string `json:"content,omitempty"`
}

var catalog = map[string]string{
	"method-catalog": "content/method-catalog.md",
	"hook-policies":  "content/hook-policies.md",
	"runbook":        "content/runbook.md",
}

// List returns every doc's name and one-line summary (its first markdown
// heading), without the full body.
func List() ([]Doc, error) {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Doc, 0, len(names))
	for _, name := range names {
		body, err := read(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Doc{Name: name, Summary: firstHeading(body)})
	}
	return out, nil
}

// Get returns the full content of the named doc.
func Get(name string) (*Doc, error) {
	body, err := read(name)
	if err != nil {
		return nil, err
	}
	return &Doc{Name: name, Summary: firstHeading(body), Content: body}, nil
}

func read(name string) (string, error) {
	path, ok := catalog[name]
	if !ok {
		return "", fmt.Errorf("unknown doc %q", name)
	}
	raw, err := content.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read doc %q: %w", name, err)
	}
	return string(raw), nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
