package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ShapeKind is the closed grammar from spec.md §3:
//
//	shape := "int" | "real" | "text" | "bool" | "undef"
//	       | [shape]                          -- array of
//	       | { fieldName: shape, ... }        -- object
//	       | Union(v1, v2, …)                 -- union of scalars (string|int)
//	       | Intersection(n1, n2, …)          -- advanced
type ShapeKind int

const (
	ShapeInt ShapeKind = iota
	ShapeReal
	ShapeText
	ShapeBool
	ShapeUndef
	ShapeArray
	ShapeObject
	ShapeUnion
	ShapeIntersection
)

// JSONShape is the recursive sum type backing a KindJSON column, per the
// design note in spec.md §9 ("express JSON shapes as a recursive sum over
// {Scalar(kind), Array(shape), Object(map), Union([literal]), Intersection}").
type JSONShape struct {
	Kind ShapeKind

	// Elem is the element shape for Kind == ShapeArray.
	Elem *JSONShape

	// Fields is the member map for Kind == ShapeObject. All fields are
	// required unless their shape is ShapeUnion with an ShapeUndef member.
	Fields map[string]JSONShape

	// Literals holds the permitted scalar literal values for Kind ==
	// ShapeUnion (spec.md: "union of scalars (string|int)").
	Literals []any

	// Members holds the shapes to merge for Kind == ShapeIntersection;
	// each member is expected to be a ShapeObject and the merged shape's
	// field set is the union of all members' fields.
	Members []JSONShape
}

func Scalar(k ShapeKind) JSONShape { return JSONShape{Kind: k} }

func ArrayOf(elem JSONShape) JSONShape { return JSONShape{Kind: ShapeArray, Elem: &elem} }

func ObjectOf(fields map[string]JSONShape) JSONShape {
	return JSONShape{Kind: ShapeObject, Fields: fields}
}

func UnionOf(literals ...any) JSONShape { return JSONShape{Kind: ShapeUnion, Literals: literals} }

// Optional wraps a shape so the field may be entirely absent, per the
// grammar's "union with undef" optionality rule.
func Optional(s JSONShape) JSONShape {
	return JSONShape{Kind: ShapeUnion, Members: []JSONShape{s, {Kind: ShapeUndef}}}
}

func IntersectionOf(members ...JSONShape) JSONShape {
	return JSONShape{Kind: ShapeIntersection, Members: members}
}

// isOptionalUnion reports whether s is a Union(...) whose Members include
// an explicit ShapeUndef arm (Optional's output shape), as opposed to a
// literal-value ShapeUnion.
func isOptionalUnion(s JSONShape) bool {
	if s.Kind != ShapeUnion || len(s.Members) == 0 {
		return false
	}
	for _, m := range s.Members {
		if m.Kind == ShapeUndef {
			return true
		}
	}
	return false
}

// Validate recursively checks v against the shape.
func (s JSONShape) Validate(v any) error {
	switch s.Kind {
	case ShapeUndef:
		if v != nil {
			return fmt.Errorf("expected undefined, got %T", v)
		}
		return nil
	case ShapeInt:
		if !isJSONInt(v) {
			return fmt.Errorf("expected int, got %T", v)
		}
		return nil
	case ShapeReal:
		switch v.(type) {
		case float64, float32, int, int64:
			return nil
		default:
			return fmt.Errorf("expected real, got %T", v)
		}
	case ShapeText:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected text, got %T", v)
		}
		return nil
	case ShapeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		return nil
	case ShapeArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
		for i, el := range arr {
			if err := s.Elem.Validate(el); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		return nil
	case ShapeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		for name, fieldShape := range s.Fields {
			fv, present := obj[name]
			if !present {
				if isOptionalUnion(fieldShape) {
					continue
				}
				return fmt.Errorf("missing required field %q", name)
			}
			if err := fieldShape.Validate(fv); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		}
		return nil
	case ShapeUnion:
		if len(s.Literals) > 0 {
			for _, lit := range s.Literals {
				if lit == v {
					return nil
				}
			}
			return fmt.Errorf("value %v not in union %v", v, s.Literals)
		}
		var errsList []error
		for _, m := range s.Members {
			if err := m.Validate(v); err == nil {
				return nil
			} else {
				errsList = append(errsList, err)
			}
		}
		return fmt.Errorf("value matches none of %d union members: %v", len(s.Members), errsList)
	case ShapeIntersection:
		merged := mergeIntersection(s.Members)
		return merged.Validate(v)
	default:
		return fmt.Errorf("unknown shape kind %d", s.Kind)
	}
}

func mergeIntersection(members []JSONShape) JSONShape {
	fields := map[string]JSONShape{}
	for _, m := range members {
		for k, v := range m.Fields {
			fields[k] = v
		}
	}
	return JSONShape{Kind: ShapeObject, Fields: fields}
}

func isJSONInt(v any) bool {
	switch n := v.(type) {
	case int, int64:
		return true
	case float64:
		return n == float64(int64(n))
	default:
		return false
	}
}

// ToJSONSchema compiles the shape into a JSON-Schema document, the form
// ValidateViaJSONSchema checks values against.
func (s JSONShape) ToJSONSchema() map[string]any {
	switch s.Kind {
	case ShapeUndef:
		return map[string]any{"type": "null"}
	case ShapeInt:
		return map[string]any{"type": "integer"}
	case ShapeReal:
		return map[string]any{"type": "number"}
	case ShapeText:
		return map[string]any{"type": "string"}
	case ShapeBool:
		return map[string]any{"type": "boolean"}
	case ShapeArray:
		return map[string]any{"type": "array", "items": s.Elem.ToJSONSchema()}
	case ShapeObject:
		props := map[string]any{}
		var required []string
		for name, f := range s.Fields {
			props[name] = f.ToJSONSchema()
			if !isOptionalUnion(f) {
				required = append(required, name)
			}
		}
		doc := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			doc["required"] = required
		}
		return doc
	case ShapeUnion:
		if len(s.Literals) > 0 {
			return map[string]any{"enum": s.Literals}
		}
		var options []any
		for _, m := range s.Members {
			options = append(options, m.ToJSONSchema())
		}
		return map[string]any{"anyOf": options}
	case ShapeIntersection:
		return mergeIntersection(s.Members).ToJSONSchema()
	default:
		return map[string]any{}
	}
}

// ValidateViaJSONSchema validates v against the compiled JSON-Schema form
// of the shape using github.com/xeipuuv/gojsonschema, the same library the
// teacher uses to validate its own plan/schema JSON. It is an alternative to
// Validate; insert, update and table.ImportFromJson validate through
// Validate, not through this method.
func (s JSONShape) ValidateViaJSONSchema(v any) error {
	doc := s.ToJSONSchema()
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("compile json shape: %w", err)
	}
	valueBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(docBytes)
	documentLoader := gojsonschema.NewBytesLoader(valueBytes)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate json shape: %w", err)
	}
	if !result.Valid() {
		msg := "json shape validation failed:"
		for _, e := range result.Errors() {
			msg += "\n- " + e.String()
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}
