// Package steering renders operator-authored standing corrections into
// the text block appended to every agent prompt (spec component D).
// Grounded on the teacher's agents/spawner.go renderPrompt/templateFuncs
// machinery, narrowed from the teacher's full multi-file prompt pipeline
// to a single formatted block.
package steering

import (
	"bytes"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Correction is the subset of internal/store.SteeringCorrection the
// engine needs, declared locally so this package doesn't import store.
type Correction struct {
	Domain string
	Text   string
}

// CorrectionSource supplies active corrections for a project. Satisfied
// by internal/store.Store.ActiveSteeringCorrections (adapted via a thin
// wrapper in the wiring layer).
type CorrectionSource interface {
	ActiveCorrections(projectID string) ([]Correction, error)
}

// Engine builds steering blocks. It holds no mutable state of its own;
// every call reads fresh from the source, so it's safe to call on every
// spawn per the component's "pure-ish" contract.
type Engine struct {
	source CorrectionSource
	tmpl   *template.Template
}

var templateFuncs = template.FuncMap{
	"title": cases.Title(language.English).String,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

const blockTemplate = `## Steering Corrections
{{range .Groups}}
### {{title .Domain}}
{{range .Texts}}- {{.}}
{{end}}{{end}}`

// NewEngine parses the block template once at construction.
func NewEngine(source CorrectionSource) (*Engine, error) {
	tmpl, err := template.New("steering").Funcs(templateFuncs).Parse(blockTemplate)
	if err != nil {
		return nil, err
	}
	return &Engine{source: source, tmpl: tmpl}, nil
}

type domainGroup struct {
	Domain string
	Texts  []string
}

// BuildPromptBlock reads active corrections scoped to projectID (plus
// global ones), groups them by domain, and renders a text block for
// inclusion in the agent prompt. Returns an empty string if there are
// no active corrections — callers should simply omit the section.
func (e *Engine) BuildPromptBlock(projectID string) (string, error) {
	corrections, err := e.source.ActiveCorrections(projectID)
	if err != nil {
		return "", err
	}
	if len(corrections) == 0 {
		return "", nil
	}

	byDomain := make(map[string][]string)
	var domains []string
	for _, c := range corrections {
		domain := c.Domain
		if domain == "" {
			domain = "general"
		}
		if _, seen := byDomain[domain]; !seen {
			domains = append(domains, domain)
		}
		byDomain[domain] = append(byDomain[domain], c.Text)
	}
	sort.Strings(domains)

	groups := make([]domainGroup, 0, len(domains))
	for _, d := range domains {
		groups = append(groups, domainGroup{Domain: d, Texts: byDomain[d]})
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, struct{ Groups []domainGroup }{Groups: groups}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
