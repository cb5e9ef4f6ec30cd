// Package render turns descriptor templates plus an attribute map into
// libvirt domain and volume descriptors.
//
// Templates use text/template syntax and are executed with
// missingkey=error, so a template that references an attribute the caller
// did not supply fails with a *TemplateError naming that attribute instead
// of silently rendering "<no value>". Optional attributes are read with
// the index function, which yields an empty value when the key is absent:
//
//	{{ with index . "mac_address" }}<mac address='{{ . }}'/>{{ end }}
package render

import (
	"bytes"
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"regexp"
	"text/template"

	jujuerrors "github.com/juju/errors"

	"github.com/jbweber/anvil/internal/errdefs"
)

// Built-in template names.
const (
	DomainTemplate = "domain"
	DiskTemplate   = "disk"
)

//go:embed templates/*.tmpl
var builtin embed.FS

var builtinFiles = map[string]string{
	DomainTemplate: "templates/domain.xml.tmpl",
	DiskTemplate:   "templates/disk.xml.tmpl",
}

var missingKeyPattern = regexp.MustCompile(`map has no entry for key "([^"]+)"`)

// TemplateError reports a template that could not be parsed or rendered.
type TemplateError struct {
	Template string
	// Key is the missing attribute, if that was the cause.
	Key string
	Err error
}

func (e *TemplateError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("template %s: missing required variable %q", e.Template, e.Key)
	}
	return fmt.Sprintf("template %s: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Is matches errdefs.Template.
func (e *TemplateError) Is(target error) bool {
	kind, ok := target.(jujuerrors.ConstError)
	return ok && kind == errdefs.Template
}

// Template is a parsed descriptor template.
type Template struct {
	name string
	tmpl *template.Template
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

var funcs = template.FuncMap{
	"xml": escapeXML,
}

// Parse parses template text.
func Parse(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, &TemplateError{Template: name, Err: err}
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// ParseFile parses the template stored at path.
func ParseFile(name, path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.Configuration, err, "failed to read %s template", name)
	}
	return Parse(name, string(data))
}

// Builtin returns one of the embedded templates.
func Builtin(name string) (*Template, error) {
	file, ok := builtinFiles[name]
	if !ok {
		return nil, fmt.Errorf("no built-in template named %q", name)
	}
	data, err := builtin.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in template %s: %w", name, err)
	}
	return Parse(name, string(data))
}

// Render executes t against attrs. It has no side effects.
func Render(t *Template, attrs map[string]any) (string, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, attrs); err != nil {
		terr := &TemplateError{Template: t.name, Err: err}
		var execErr template.ExecError
		if errors.As(err, &execErr) {
			if m := missingKeyPattern.FindStringSubmatch(execErr.Error()); m != nil {
				terr.Key = m[1]
			}
		}
		return "", terr
	}
	return buf.String(), nil
}

// Renderer holds the domain and disk templates used by the controller.
type Renderer struct {
	domain *Template
	disk   *Template
}

// NewRenderer loads templates from the given paths. An empty path selects
// the built-in template.
func NewRenderer(domainPath, diskPath string) (*Renderer, error) {
	domain, err := load(DomainTemplate, domainPath)
	if err != nil {
		return nil, err
	}
	disk, err := load(DiskTemplate, diskPath)
	if err != nil {
		return nil, err
	}
	return &Renderer{domain: domain, disk: disk}, nil
}

func load(name, path string) (*Template, error) {
	if path == "" {
		return Builtin(name)
	}
	return ParseFile(name, path)
}

// RenderDomain renders the domain descriptor.
func (r *Renderer) RenderDomain(attrs map[string]any) (string, error) {
	return Render(r.domain, attrs)
}

// RenderDisk renders the disk volume descriptor.
func (r *Renderer) RenderDisk(attrs map[string]any) (string, error) {
	return Render(r.disk, attrs)
}

func escapeXML(v any) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(fmt.Sprint(v))); err != nil {
		return "", err
	}
	return buf.String(), nil
}
