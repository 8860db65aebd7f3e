// Package schema parses and represents the extraction template: the
// declarative specification of every expected output field, its type and
// its correction rules. The JSON template document is the one
// stability-critical wire contract of the system.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// FieldType classifies how a field's values are coerced and compared.
type FieldType string

const (
	TypeEnum    FieldType = "enum"
	TypeNumeric FieldType = "numeric"
	TypeDate    FieldType = "date"
	TypeString  FieldType = "string"
	TypeFormula FieldType = "formula"
)

var knownTypes = map[FieldType]bool{
	TypeEnum:    true,
	TypeNumeric: true,
	TypeDate:    true,
	TypeString:  true,
	TypeFormula: true,
}

// FieldSpec is the specification of one expected output field.
type FieldSpec struct {
	Name           string            `json:"-" yaml:"-"`
	Type           FieldType         `json:"type" yaml:"type"`
	AllowedValues  []string          `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	Mapping        map[string]string `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	DefaultMissing string            `json:"default_missing" yaml:"default_missing"`
	FormatRegex    string            `json:"format_regex,omitempty" yaml:"format_regex,omitempty"`
	DecimalPlaces  int               `json:"decimal_places,omitempty" yaml:"decimal_places,omitempty"`
	Formula        string            `json:"formula,omitempty" yaml:"formula,omitempty"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`

	formatRE  *regexp.Regexp
	expr      *Expr
	normMap   map[string]string
	normAllow map[string]string
}

// MapValue looks the normalized raw value up in the field's synonym
// mapping and returns the canonical value.
func (f *FieldSpec) MapValue(raw string) (string, bool) {
	v, ok := f.normMap[Normalize(raw)]
	return v, ok
}

// CanonicalAllowed returns the canonical allowed value matching raw under
// normalization, or false when raw is not an allowed value.
func (f *FieldSpec) CanonicalAllowed(raw string) (string, bool) {
	v, ok := f.normAllow[Normalize(raw)]
	return v, ok
}

// MatchFormat reports whether the value satisfies format_regex. Fields
// without a pattern accept everything.
func (f *FieldSpec) MatchFormat(value string) bool {
	if f.formatRE == nil {
		return true
	}
	return f.formatRE.MatchString(value)
}

// Expr returns the parsed formula for formula fields, nil otherwise.
func (f *FieldSpec) Expr() *Expr { return f.expr }

// Schema is the ordered, immutable collection of field specifications. The
// field list defines exactly the columns of any corrected record.
type Schema struct {
	fields []FieldSpec
	byName map[string]*FieldSpec
}

// New builds and validates a Schema from an ordered field list.
func New(fields []FieldSpec) (*Schema, error) {
	s := &Schema{
		fields: fields,
		byName: make(map[string]*FieldSpec, len(fields)),
	}

	declared := make(map[string]int, len(fields))
	for i := range s.fields {
		f := &s.fields[i]

		if f.Name == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("field at position %d has an empty name", i)}
		}
		if _, dup := declared[f.Name]; dup {
			return nil, &ParseError{Field: f.Name, Reason: "duplicate field name"}
		}
		if f.Type == "" {
			return nil, &ParseError{Field: f.Name, Reason: "missing type"}
		}
		if !knownTypes[f.Type] {
			return nil, &ParseError{Field: f.Name, Reason: fmt.Sprintf("unknown type %q", f.Type)}
		}
		if f.DecimalPlaces < 0 {
			return nil, &ParseError{Field: f.Name, Reason: "decimal_places must not be negative"}
		}

		if f.FormatRegex != "" {
			re, err := regexp.Compile(f.FormatRegex)
			if err != nil {
				return nil, &ParseError{Field: f.Name, Reason: fmt.Sprintf("invalid format_regex: %v", err)}
			}
			f.formatRE = re
		}

		f.normAllow = make(map[string]string, len(f.AllowedValues))
		for _, av := range f.AllowedValues {
			f.normAllow[Normalize(av)] = av
		}

		f.normMap = make(map[string]string, len(f.Mapping))
		for k, v := range f.Mapping {
			if len(f.AllowedValues) > 0 {
				if _, ok := f.normAllow[Normalize(v)]; !ok {
					return nil, &ParseError{Field: f.Name, Reason: fmt.Sprintf("mapping target %q is not an allowed value", v)}
				}
			}
			f.normMap[Normalize(k)] = v
		}

		if f.Type == TypeFormula {
			if f.Formula == "" {
				return nil, &ParseError{Field: f.Name, Reason: "formula fields require a formula"}
			}
			expr, err := ParseFormula(f.Formula)
			if err != nil {
				return nil, &ParseError{Field: f.Name, Reason: err.Error()}
			}
			for _, dep := range expr.Vars() {
				if _, ok := declared[dep]; !ok {
					return nil, &DependencyError{Field: f.Name, Dependency: dep}
				}
			}
			f.expr = expr
		} else if f.Formula != "" {
			return nil, &ParseError{Field: f.Name, Reason: "only formula fields may carry a formula"}
		}

		declared[f.Name] = i
		s.byName[f.Name] = f
	}

	return s, nil
}

// Load reads a schema template from a JSON (.json) or YAML (.yaml/.yml)
// file. Field order in the document is the schema order.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// Parse decodes a JSON template document, preserving field order.
func Parse(data []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, eris.Wrap(err, "schema: parse")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &ParseError{Reason: "template document must be a JSON object"}
	}

	var fields []FieldSpec
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, eris.Wrap(err, "schema: parse field name")
		}
		name := keyTok.(string)

		var f FieldSpec
		if err := dec.Decode(&f); err != nil {
			return nil, &ParseError{Field: name, Reason: fmt.Sprintf("invalid field specification: %v", err)}
		}
		f.Name = name
		fields = append(fields, f)
	}

	return New(fields)
}

// ParseYAML decodes a YAML template document through yaml.Node, which
// preserves mapping order.
func ParseYAML(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "schema: parse yaml")
	}
	if len(doc.Content) == 0 {
		return New(nil)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Reason: "template document must be a mapping"}
	}

	var fields []FieldSpec
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value

		var f FieldSpec
		if err := root.Content[i+1].Decode(&f); err != nil {
			return nil, &ParseError{Field: name, Reason: fmt.Sprintf("invalid field specification: %v", err)}
		}
		f.Name = name
		fields = append(fields, f)
	}

	return New(fields)
}

// Fields returns the field specifications in declaration order.
func (s *Schema) Fields() []FieldSpec { return s.fields }

// Lookup returns the field specification for name, or nil.
func (s *Schema) Lookup(name string) *FieldSpec { return s.byName[name] }

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

var collapseWS = regexp.MustCompile(`\s+`)

// Normalize maps a string to its canonical comparison form: NFKC
// normalized, trimmed, inner whitespace collapsed, lowercased. Both key
// reconciliation and value comparison are defined over this form.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.TrimSpace(s)
	s = collapseWS.ReplaceAllString(s, " ")
	return strings.ToLower(s)
}
