package flow

import (
	"os"
	"path/filepath"
	"text/template"
)

// WriteTemplate renders a minimal text/template against data and writes
// the result to path (relative to RunPath unless absolute). This is the
// engine's entire stake in script templating per §9's design note: TCL
// and shell script generation is an external collaborator, the flow
// engine only needs "write string to file in run-path".
func (c *Context) WriteTemplate(relPath, body string, data interface{}) (string, error) {
	tmpl, err := template.New(relPath).Parse(body)
	if err != nil {
		return "", err
	}
	path := relPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.RunPath, relPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := tmpl.Execute(f, data); err != nil {
		return "", err
	}
	return path, nil
}
