// Package validation checks inbound intake records and outbound model replies
// against their fixed shapes.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/treatment-plan-assistant/internal/domain"
)

const rootField = "(root)"

// Validator wraps a go-playground validator configured to report JSON field
// paths such as "allergies[0].severity".
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// ParseIntake decodes and validates a raw intake payload. Any failure is an
// InvalidInput PipelineError listing every violation found, type mismatches
// included.
func (v *Validator) ParseIntake(data []byte) (*domain.PatientIntakeRecord, error) {
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, domain.NewInvalidInputError(decodeViolations(err))
	}
	if _, ok := parsed.(map[string]interface{}); !ok {
		return nil, domain.NewInvalidInputError([]*domain.ValidationError{
			domain.NewValidationError(rootField, "must be a JSON object", parsed),
		})
	}

	var record domain.PatientIntakeRecord
	violations := shapeViolations(parsed, reflect.TypeOf(record), "")
	if err := json.Unmarshal(data, &record); err != nil && len(violations) == 0 {
		violations = decodeViolations(err)
	}

	violations = merge(violations, v.ValidateIntake(&record))
	if len(violations) > 0 {
		return nil, domain.NewInvalidInputError(violations)
	}
	return &record, nil
}

// ValidateIntake checks an already decoded record
func (v *Validator) ValidateIntake(record *domain.PatientIntakeRecord) []*domain.ValidationError {
	if record == nil {
		return []*domain.ValidationError{domain.NewValidationError(rootField, "is required", nil)}
	}
	return v.structViolations(record)
}

// ParseTreatmentResult parses raw model output in two steps. Text that is not
// JSON fails with MalformedModelOutput; JSON of the wrong shape fails with
// SchemaMismatch carrying the violations and the decoded value. Keys must be
// present but string values may be empty. Nothing is repaired.
func (v *Validator) ParseTreatmentResult(raw string) (*domain.TreatmentAnalysisResult, error) {
	cleaned := StripCodeFence(raw)

	var parsed interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, domain.NewMalformedOutputError(raw, err)
	}

	if _, ok := parsed.(map[string]interface{}); !ok {
		return nil, domain.NewSchemaMismatchError(raw, parsed, []*domain.ValidationError{
			domain.NewValidationError(rootField, "must be a JSON object", parsed),
		})
	}

	var result domain.TreatmentAnalysisResult
	violations := shapeViolations(parsed, reflect.TypeOf(result), "")
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil && len(violations) == 0 {
		violations = decodeViolations(err)
	}
	violations = merge(violations, v.structViolations(&result))
	if len(violations) > 0 {
		return nil, domain.NewSchemaMismatchError(raw, parsed, violations)
	}
	return &result, nil
}

// StripCodeFence removes a surrounding Markdown code fence, which some
// providers add even in JSON mode.
func StripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

func (v *Validator) structViolations(s interface{}) []*domain.ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []*domain.ValidationError{domain.NewValidationError(rootField, err.Error(), nil)}
	}

	violations := make([]*domain.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, toViolation(fe))
	}
	return violations
}

func toViolation(fe validator.FieldError) *domain.ValidationError {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	var value interface{}
	if fe.Tag() != "required" {
		value = fe.Value()
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.Ptr && !rv.IsNil() {
			value = rv.Elem().Interface()
		}
	}
	return domain.NewValidationError(field, message(fe), value)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// decodeViolations turns a json.Unmarshal error into violations. Syntax errors
// are reported at the root and type errors at the offending field.
func decodeViolations(err error) []*domain.ValidationError {
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = rootField
		}
		return []*domain.ValidationError{
			domain.NewValidationError(field, fmt.Sprintf("expected %s but got %s", typeErr.Type.String(), typeErr.Value), nil),
		}
	}

	return []*domain.ValidationError{domain.NewValidationError(rootField, "body is not valid JSON: "+err.Error(), nil)}
}

// merge appends b to a, dropping entries for fields a already reports
func merge(a, b []*domain.ValidationError) []*domain.ValidationError {
	seen := make(map[string]bool, len(a))
	for _, e := range a {
		seen[e.Field] = true
	}
	for _, e := range b {
		if !seen[e.Field] {
			a = append(a, e)
		}
	}
	return a
}
