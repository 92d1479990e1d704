// Package analysis maps the named analysis operations of the model checker
// onto native calls.
//
// An operation is data, not code: the catalog names its exported symbol, its
// parameters in native order, and how each request value becomes an
// argument. Build turns a request into a validated call.Descriptor; Service
// runs it through an invoker and cleans up whatever the request needed on
// disk.
package analysis

import (
	_ "embed"
	stderrors "errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/tck-bridge/call"
	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/native"
	"github.com/wippyai/tck-bridge/scratch"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Encoding says how a request value is turned into a native argument.
type Encoding string

const (
	// Plain passes the value through the type's own coercion.
	Plain Encoding = ""
	// Model writes text to a scratch file and passes the file's path.
	Model Encoding = "model"
	// CSV joins a list of strings with commas.
	CSV Encoding = "csv"
	// Bool passes true and false as 1 and 0.
	Bool Encoding = "bool"
)

// Param is one native parameter of an operation.
type Param struct {
	Default  any         `yaml:"default" json:"default,omitempty"`
	Name     string      `yaml:"name" json:"name" validate:"required,param_name"`
	Encoding Encoding    `yaml:"encoding" json:"encoding,omitempty" validate:"omitempty,oneof=model csv bool plain"`
	Type     native.Type `yaml:"type" json:"type"`
	Required bool        `yaml:"required" json:"required"`
}

// Operation describes one exported analysis entry point.
type Operation struct {
	Name        string      `yaml:"name" json:"name" validate:"required"`
	Summary     string      `yaml:"summary" json:"summary"`
	Symbol      string      `yaml:"symbol" json:"symbol" validate:"required,c_symbol"`
	ResultField string      `yaml:"result_field" json:"result_field" validate:"required,param_name"`
	Params      []Param     `yaml:"params" json:"params" validate:"dive"`
	Returns     native.Type `yaml:"returns" json:"returns"`
}

// Catalog is a validated set of operations. It is read-only after Load.
type Catalog struct {
	byName     map[string]*Operation
	Release    string       `yaml:"release" validate:"omitempty,c_symbol"`
	Operations []*Operation `yaml:"operations" validate:"required,min=1,dive,required"`
}

var (
	symbolPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	catalogValidate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("c_symbol", func(fl validator.FieldLevel) bool {
		return symbolPattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("param_name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	return v
}

// Load parses and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, configError(err, "parse catalog")
	}
	if err := catalogValidate.Struct(&c); err != nil {
		return nil, configError(err, "validate catalog")
	}

	c.byName = make(map[string]*Operation, len(c.Operations))
	for _, op := range c.Operations {
		for i := range op.Params {
			if op.Params[i].Encoding == "plain" {
				op.Params[i].Encoding = Plain
			}
		}
		if _, dup := c.byName[op.Name]; dup {
			return nil, configError(nil, fmt.Sprintf("operation %q defined twice", op.Name))
		}
		if err := op.check(); err != nil {
			return nil, err
		}
		c.byName[op.Name] = op
	}
	return &c, nil
}

// LoadFile loads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configError(err, "read catalog "+path)
	}
	return Load(data)
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(defaultCatalog)
})

// Default returns the catalog built into the binary.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Lookup returns the operation called name.
func (c *Catalog) Lookup(name string) (*Operation, bool) {
	op, ok := c.byName[name]
	return op, ok
}

// Names lists the operations in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Operations))
	for i, op := range c.Operations {
		names[i] = op.Name
	}
	return names
}

// check enforces what struct tags cannot: parameter and return roles, and
// that each encoding fits its native type.
func (op *Operation) check() error {
	if !op.Returns.IsReturn() {
		return configError(nil, fmt.Sprintf("%s: %s cannot be returned", op.Name, op.Returns))
	}
	seen := make(map[string]bool, len(op.Params))
	for _, p := range op.Params {
		if seen[p.Name] {
			return configError(nil, fmt.Sprintf("%s: parameter %q declared twice", op.Name, p.Name))
		}
		seen[p.Name] = true

		// Output slots are filled by the worker, never by a request value.
		if !p.Type.IsParam() || p.Type == native.OutInt32Ptr {
			return configError(nil, fmt.Sprintf("%s.%s: %s is not a request parameter type", op.Name, p.Name, p.Type))
		}
		want := native.Text
		switch p.Encoding {
		case Model, CSV:
		case Bool:
			want = native.Int32
		default:
			want = p.Type
		}
		if p.Type != want {
			return configError(nil, fmt.Sprintf("%s.%s: %s encoding needs %s, declared %s", op.Name, p.Name, p.Encoding, want, p.Type))
		}

		if p.Encoding == Model && p.Default != nil {
			return configError(nil, fmt.Sprintf("%s.%s: model parameters have no default", op.Name, p.Name))
		}
		if p.Encoding != Model && p.Default != nil {
			if _, err := p.argument(p.Default); err != nil {
				return configError(err, fmt.Sprintf("%s.%s: bad default", op.Name, p.Name))
			}
		}
	}
	return nil
}

// Build converts request values into a call of the named operation. Model
// text is written into scope, which the caller must close once the call has
// finished.
func (c *Catalog) Build(name string, values map[string]any, scope *scratch.Scope) (*call.Descriptor, error) {
	op, ok := c.Lookup(name)
	if !ok {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Detail("unknown operation %q", name).
			Value(name).
			Build()
	}

	var unknown []string
	for k := range values {
		if !op.has(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path("params", unknown[0]).
			Detail("%s takes no parameter %q", op.Name, unknown[0]).
			Build()
	}

	params := make([]native.Type, len(op.Params))
	args := make([]any, len(op.Params))
	for i, p := range op.Params {
		v, present := values[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
					Path("params", p.Name).
					Detail("%s requires %q", op.Name, p.Name).
					Build()
			}
			v = p.fallback()
		}
		a, err := p.argument(v)
		if err != nil {
			return nil, err
		}
		params[i] = p.Type
		args[i] = a
	}

	// Models reach disk only once every value has been accepted.
	for i, p := range op.Params {
		if p.Encoding != Model {
			continue
		}
		if scope == nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindUnsupported).
				Path("params", p.Name).
				Detail("no scratch scope for model text").
				Build()
		}
		file, err := scope.WriteFile([]byte(args[i].(string)))
		if err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindSpawn).
				Path("params", p.Name).
				Cause(err).
				Detail("write model file").
				Build()
		}
		args[i] = file
	}

	return call.NewTyped(op.Symbol, params, op.Returns, args, call.WithRelease(c.Release))
}

func (op *Operation) has(name string) bool {
	for _, p := range op.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (p Param) fallback() any {
	if p.Default != nil {
		return p.Default
	}
	switch p.Type {
	case native.Text:
		return ""
	case native.Double:
		return 0.0
	}
	return 0
}

// argument applies p's encoding to v and checks the result against p's type.
// Model text is checked and returned as is; Build writes it out.
func (p Param) argument(v any) (any, error) {
	path := []string{"params", p.Name}

	switch p.Encoding {
	case Model:
		text, ok := textOf(v)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, fmt.Sprintf("%T", v), "model text")
		}
		if strings.TrimSpace(text) == "" {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(path...).
				Detail("model text is empty").
				Build()
		}
		v = text

	case CSV:
		joined, err := joinList(v, path)
		if err != nil {
			return nil, err
		}
		v = joined

	case Bool:
		if b, ok := v.(bool); ok {
			if b {
				v = 1
			} else {
				v = 0
			}
		}
	}

	if _, err := call.Encode(v, p.Type); err != nil {
		return nil, at(err, path)
	}
	return v, nil
}

func textOf(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func joinList(v any, path []string) (string, error) {
	switch l := v.(type) {
	case string:
		return l, nil
	case []string:
		return strings.Join(l, ","), nil
	case []any:
		parts := make([]string, len(l))
		for i, item := range l {
			s, ok := item.(string)
			if !ok {
				return "", errors.TypeMismatch(errors.PhaseEncode, append(path, fmt.Sprint(i)), fmt.Sprintf("%T", item), "text")
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	}
	return "", errors.TypeMismatch(errors.PhaseEncode, path, fmt.Sprintf("%T", v), "list of text")
}

// at moves an encoding error to the request parameter it came from.
func at(err error, path []string) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		moved := *e
		moved.Path = path
		return &moved
	}
	return err
}

func configError(cause error, detail string) error {
	return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, cause, detail)
}
