package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/treatment-plan-assistant/internal/domain"
)

// shapeViolations walks a generically decoded JSON value alongside the Go type
// it will be decoded into. It reports every key that is missing or null where
// the json tag has no omitempty, and every value of the wrong JSON type, with
// indexed paths such as "allergies[0].severity". Value rules such as enums and
// ranges are left to the struct validator.
func shapeViolations(value interface{}, t reflect.Type, path string) []*domain.ValidationError {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if value == nil {
		return nil
	}

	switch t.Kind() {
	case reflect.Struct:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return []*domain.ValidationError{typeMismatch(path, "object", value)}
		}
		var out []*domain.ValidationError
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name, optional := jsonKey(field)
			if name == "" {
				continue
			}
			fieldPath := joinPath(path, name)
			child, present := obj[name]
			if !present || child == nil {
				if !optional {
					out = append(out, domain.NewValidationError(fieldPath, "is required", nil))
				}
				continue
			}
			out = append(out, shapeViolations(child, field.Type, fieldPath)...)
		}
		return out

	case reflect.Slice, reflect.Array:
		items, ok := value.([]interface{})
		if !ok {
			return []*domain.ValidationError{typeMismatch(path, "array", value)}
		}
		var out []*domain.ValidationError
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				out = append(out, typeMismatch(itemPath, jsonTypeName(t.Elem()), item))
				continue
			}
			out = append(out, shapeViolations(item, t.Elem(), itemPath)...)
		}
		return out

	case reflect.String:
		if _, ok := value.(string); !ok {
			return []*domain.ValidationError{typeMismatch(path, "string", value)}
		}

	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if _, ok := value.(float64); !ok {
			return []*domain.ValidationError{typeMismatch(path, "number", value)}
		}

	case reflect.Bool:
		if _, ok := value.(bool); !ok {
			return []*domain.ValidationError{typeMismatch(path, "boolean", value)}
		}
	}

	return nil
}

func jsonKey(field reflect.StructField) (name string, optional bool) {
	if field.PkgPath != "" {
		return "", false
	}
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			optional = true
		}
	}
	return name, optional
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func jsonTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	default:
		return "number"
	}
}

func typeMismatch(path, expected string, value interface{}) *domain.ValidationError {
	if path == "" {
		path = rootField
	}
	return domain.NewValidationError(path, fmt.Sprintf("expected %s but got %s", expected, describe(value)), value)
}

func describe(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
