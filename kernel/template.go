package kernel

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"

	"github.com/exascience/accel/device"
)

// WaveSize is the number of work-items per work-group of every kernel.
const WaveSize = 64

// Substitutions are the values of the named placeholders of a template.
type Substitutions struct {
	// EntryPoint is the name of the instantiated kernel. It is set by
	// the cache.
	EntryPoint string
	// ValueType is the element type of the (first) input.
	ValueType string
	// SecondType is the element type of the second input of binary
	// transforms.
	SecondType string
	// OutputType is the element type of the output, if it differs from
	// the input.
	OutputType string
	// FunctorType is the type of the binary functor, or the unary functor
	// of a transform.
	FunctorType string
	// TransformType is the type of the unary functor of transform-reduce.
	TransformType string
	// WaveSize is the work-group size.
	WaveSize int
}

// A Template is the device source of one algorithm in one dialect. It
// consists of a kernel template and an instantiation directive that
// names the entry point, both with named placeholders such as
// {{.ValueType}}.
type Template struct {
	Algorithm string
	Dialect   device.Dialect
	t         *template.Template
}

// Render fills the placeholders of the kernel template and the
// instantiation directive. A missing value is an error.
func (t *Template) Render(s Substitutions) (string, error) {
	var b strings.Builder
	for _, name := range [...]string{"kernel", "instantiation"} {
		if err := t.t.ExecuteTemplate(&b, name, s); err != nil {
			return "", fmt.Errorf("kernel: rendering %v template for %v: %w", name, t.Algorithm, err)
		}
	}
	return b.String(), nil
}

// Compose returns the complete source for a kernel: the user functor
// source, followed by the rendered template and instantiation.
func (t *Template) Compose(userSource string, s Substitutions) (string, error) {
	text, err := t.Render(s)
	if err != nil {
		return "", err
	}
	return userSource + "\n\n" + text, nil
}

// Parse parses a template from text that defines the blocks "kernel"
// and "instantiation".
func Parse(algorithm string, d device.Dialect, text string) (*Template, error) {
	t, err := template.New(algorithm).Option("missingkey=error").Funcs(template.FuncMap{
		"required": required,
	}).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("kernel: parsing %v template: %w", algorithm, err)
	}
	for _, name := range [...]string{"kernel", "instantiation"} {
		if t.Lookup(name) == nil {
			return nil, fmt.Errorf("kernel: %v template does not define %q", algorithm, name)
		}
	}
	return &Template{Algorithm: algorithm, Dialect: d, t: t}, nil
}

// required fails template execution for empty placeholder values.
func required(name string, value any) (any, error) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("placeholder %v is empty", name)
		}
	case int:
		if v == 0 {
			return nil, fmt.Errorf("placeholder %v is zero", name)
		}
	}
	return value, nil
}

//go:embed templates
var templateFS embed.FS

var extensions = map[string]device.Dialect{
	".cl":   device.OpenCL,
	".wgsl": device.WGSL,
}

var templates = make(map[device.Dialect]map[string]*Template)

func init() {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		panic(err)
	}
	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		d, ok := extensions[ext]
		if !ok {
			continue
		}
		text, err := templateFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			panic(err)
		}
		algorithm := strings.TrimSuffix(entry.Name(), ext)
		t, err := Parse(algorithm, d, string(text))
		if err != nil {
			panic(err)
		}
		if templates[d] == nil {
			templates[d] = make(map[string]*Template)
		}
		templates[d][algorithm] = t
	}
}

// Lookup returns the built-in template of an algorithm in a dialect.
func Lookup(algorithm string, d device.Dialect) (*Template, error) {
	if t, ok := templates[d][algorithm]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("kernel: no %v template for %v", d, algorithm)
}
