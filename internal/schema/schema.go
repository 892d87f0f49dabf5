// Package schema provides a declarative representation of collection
// schemas uploaded for delegated databases. A schema maps field names to a
// type tag plus constraints, and one generic validator interprets it; no
// types are synthesized at runtime.
package schema

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// FieldType tags the expected type of a document field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeBool     FieldType = "bool"
	TypeList     FieldType = "list"
	TypeMap      FieldType = "map"
	TypeDatetime FieldType = "datetime"
)

var validTypes = map[FieldType]bool{
	TypeString:   true,
	TypeInt:      true,
	TypeFloat:    true,
	TypeBool:     true,
	TypeList:     true,
	TypeMap:      true,
	TypeDatetime: true,
}

// Field declares the type tag and constraints of one document field.
type Field struct {
	Type     FieldType `yaml:"type"`
	Required bool      `yaml:"required"`

	// Min and Max bound a numeric value, or the length of a string or
	// list, depending on Type.
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	// Enum restricts a string field to a fixed set of values.
	Enum []string `yaml:"enum"`
}

// Schema is the declarative description of one collection's documents.
type Schema struct {
	Name   string           `yaml:"name"`
	Fields map[string]Field `yaml:"fields"`
}

// Parse reads a YAML schema document and checks it is well formed.
func Parse(content []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(content, &s); err != nil {
		return Schema{}, fmt.Errorf("parse schema: %w", err)
	}
	if len(s.Fields) == 0 {
		return Schema{}, fmt.Errorf("schema declares no fields")
	}
	for name, field := range s.Fields {
		if !validTypes[field.Type] {
			return Schema{}, fmt.Errorf("field %q: unknown type %q", name, field.Type)
		}
		if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
			return Schema{}, fmt.Errorf("field %q: min %v exceeds max %v", name, *field.Min, *field.Max)
		}
		if len(field.Enum) > 0 && field.Type != TypeString {
			return Schema{}, fmt.Errorf("field %q: enum requires type string", name)
		}
	}
	return s, nil
}

// Validate checks a document against the schema. Unknown fields are
// rejected; missing required fields and type or constraint violations are
// reported with the offending field name.
func (s Schema) Validate(doc map[string]any) error {
	for name, field := range s.Fields {
		value, present := doc[name]
		if !present {
			if field.Required {
				return fmt.Errorf("field %q is required", name)
			}
			continue
		}
		if err := field.check(value); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	for name := range doc {
		if _, declared := s.Fields[name]; !declared {
			return fmt.Errorf("field %q is not declared in the schema", name)
		}
	}
	return nil
}

func (f Field) check(value any) error {
	switch f.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if err := f.checkBounds(float64(len(str)), "length"); err != nil {
			return err
		}
		if len(f.Enum) > 0 {
			for _, allowed := range f.Enum {
				if str == allowed {
					return nil
				}
			}
			return fmt.Errorf("value %q not in enum %v", str, f.Enum)
		}
		return nil

	case TypeInt:
		num, ok := asNumber(value)
		if !ok || num != float64(int64(num)) {
			return fmt.Errorf("expected int, got %T", value)
		}
		return f.checkBounds(num, "value")

	case TypeFloat:
		num, ok := asNumber(value)
		if !ok {
			return fmt.Errorf("expected float, got %T", value)
		}
		return f.checkBounds(num, "value")

	case TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		return nil

	case TypeList:
		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
		return f.checkBounds(float64(len(list)), "length")

	case TypeMap:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected map, got %T", value)
		}
		return nil

	case TypeDatetime:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected RFC 3339 datetime string, got %T", value)
		}
		if _, err := time.Parse(time.RFC3339, str); err != nil {
			return fmt.Errorf("invalid datetime %q", str)
		}
		return nil

	default:
		return fmt.Errorf("unknown type %q", f.Type)
	}
}

func (f Field) checkBounds(n float64, what string) error {
	if f.Min != nil && n < *f.Min {
		return fmt.Errorf("%s %v below min %v", what, n, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Errorf("%s %v above max %v", what, n, *f.Max)
	}
	return nil
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
