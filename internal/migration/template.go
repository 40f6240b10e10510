package migration

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// DefaultUpTemplate renders one statement per line.
const DefaultUpTemplate = `-- {{ .Name }}{{ if .Module }} ({{ .Module }}){{ end }}
{{ range .Statements }}{{ . }};
{{ end }}`

// DefaultDownTemplate renders one statement per line.
const DefaultDownTemplate = `-- revert {{ .Name }}{{ if .Module }} ({{ .Module }}){{ end }}
{{ range .Statements }}{{ . }};
{{ end }}`

// TemplateData is passed to the up and down templates.
type TemplateData struct {
	Name       string
	Revision   Revision
	Module     string
	Statements []string
}

// renderScript executes src against data. src may be template text or a path
// to a template file.
func renderScript(name, src string, data TemplateData) (string, error) {
	text, err := templateSource(src)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return buf.String(), nil
}

func templateSource(src string) (string, error) {
	if src == "" || strings.ContainsAny(src, "{\n") {
		return src, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", src, err)
	}
	return string(data), nil
}
