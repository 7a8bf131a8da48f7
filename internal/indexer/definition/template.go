package definition

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// TemplateContext provides the data available to search path templates.
type TemplateContext struct {
	Keywords string
	Query    QueryContext
}

// QueryContext contains search query parameters exposed to templates.
type QueryContext struct {
	Keywords    string
	IMDBID      string // with "tt" prefix
	IMDBIDShort string // without "tt" prefix
	Season      int
	Episode     int
	Page        int
}

// Engine resolves the tiny template language embedded in definition search
// paths. Only a closed set of constructs is supported; anything else makes
// the path unusable rather than producing a malformed URL.
type Engine struct{}

// NewEngine creates a template engine.
func NewEngine() *Engine {
	return &Engine{}
}

var (
	actionPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

	// Allowed field references inside actions.
	allowedFields = map[string]bool{
		".Keywords":          true,
		".Query.Keywords":    true,
		".Query.IMDBID":      true,
		".Query.IMDBIDShort": true,
		".Query.Season":      true,
		".Query.Episode":     true,
		".Query.Page":        true,
	}
)

// Resolve evaluates a search path template against the context. It returns
// an error for any construct outside the supported subset.
func (e *Engine) Resolve(tmplStr string, ctx *TemplateContext) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	if err := e.validate(tmplStr); err != nil {
		return "", err
	}

	tmpl, err := template.New("path").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template execute error: %w", err)
	}

	return buf.String(), nil
}

// validate rejects template actions outside the supported subset: plain
// field references, and if/else/end over a single field.
func (e *Engine) validate(tmplStr string) error {
	for _, match := range actionPattern.FindAllStringSubmatch(tmplStr, -1) {
		action := strings.TrimSpace(match[1])
		switch {
		case action == "else", action == "end":
			continue
		case strings.HasPrefix(action, "if "):
			cond := strings.TrimSpace(strings.TrimPrefix(action, "if "))
			if !allowedFields[cond] {
				return fmt.Errorf("unsupported template condition %q", cond)
			}
		case allowedFields[action]:
			continue
		default:
			return fmt.Errorf("unsupported template construct %q", action)
		}
	}
	return nil
}
