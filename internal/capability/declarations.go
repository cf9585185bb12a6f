package capability

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed declarations.schema.json
var declarationsSchemaData []byte

var (
	declarationsSchema *jsonschema.Schema
	compileOnce        sync.Once
	compileErr         error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(declarationsSchemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal declarations schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("declarations.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add declarations schema resource: %w", err)
			return
		}
		declarationsSchema, err = compiler.Compile("declarations.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile declarations schema: %w", err)
		}
	})
	return compileErr
}

// Declarations is the static mapping from backend identifiers to their
// registries and from test identifiers to their requirements.
type Declarations struct {
	Backends map[string]*Registry
	Tests    map[string]RequirementSet
}

type declarationsFile struct {
	Backends map[string][]string `yaml:"backends"`
	Tests    map[string][]string `yaml:"tests"`
}

// LoadDeclarations reads and validates a YAML declaration file.
func LoadDeclarations(path string) (*Declarations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDeclarations(data)
}

// ParseDeclarations validates data against the declarations schema and
// resolves every tag into a typed Capability.
func ParseDeclarations(data []byte) (*Declarations, error) {
	if err := compileSchema(); err != nil {
		return nil, err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	// The validator works on JSON values, so normalise through encoding/json.
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert declarations: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, fmt.Errorf("convert declarations: %w", err)
	}
	if err := declarationsSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("declarations validation failed: %w", err)
	}

	var file declarationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	decl := &Declarations{
		Backends: make(map[string]*Registry, len(file.Backends)),
		Tests:    make(map[string]RequirementSet, len(file.Tests)),
	}
	for backend, tags := range file.Backends {
		reg := NewRegistry(backend)
		for _, tag := range tags {
			c, err := Parse(tag)
			if err != nil {
				return nil, fmt.Errorf("backend %s: %w", backend, err)
			}
			reg.Register(c)
		}
		decl.Backends[backend] = reg
	}
	for test, tags := range file.Tests {
		var rs RequirementSet
		for _, tag := range tags {
			c, err := Parse(tag)
			if err != nil {
				return nil, fmt.Errorf("test %s: %w", test, err)
			}
			rs.Declare(c)
		}
		decl.Tests[test] = rs
	}
	return decl, nil
}

// Registry returns the declared registry for backend, or nil.
func (d *Declarations) Registry(backend string) *Registry {
	if d == nil {
		return nil
	}
	return d.Backends[backend]
}

// Requirements returns the declared requirements for test and whether the
// test was declared at all.
func (d *Declarations) Requirements(test string) (RequirementSet, bool) {
	if d == nil {
		return RequirementSet{}, false
	}
	rs, ok := d.Tests[test]
	return rs, ok
}

// BackendNames returns the declared backends in sorted order.
func (d *Declarations) BackendNames() []string {
	names := make([]string, 0, len(d.Backends))
	for name := range d.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
