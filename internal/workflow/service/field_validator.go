package service

import (
	"fmt"
	"regexp"
	"time"

	"github.com/opendossier/dossier/internal/workflow/model"
)

// Accepted layouts for DATE fields.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// ValidateFields checks submitted values against the field definitions and
// returns a map of fieldKey to error message. An empty map means the
// submission passes. Pure: the caller decides whether to block.
func ValidateFields(fields []model.FieldDef, values map[string]any) map[string]string {
	errs := make(map[string]string)
	for _, def := range fields {
		value := values[def.Key]
		if isEmptyValue(value) {
			if def.Required {
				errs[def.Key] = fmt.Sprintf("field %q is required", def.Key)
			}
			continue
		}
		if msg := validateKind(def, value); msg != "" {
			errs[def.Key] = msg
		}
	}
	return errs
}

// ValidateRejectedFields runs validation only over the subset of fields whose
// previous value was rejected. Untouched approved or pending fields are not
// re-validated, so partial correction never requires re-entering
// already-approved data.
func ValidateRejectedFields(fields []model.FieldDef, values map[string]any, rejectedKeys map[string]bool) map[string]string {
	subset := make([]model.FieldDef, 0, len(rejectedKeys))
	for _, def := range fields {
		if rejectedKeys[def.Key] {
			subset = append(subset, def)
		}
	}
	return ValidateFields(subset, values)
}

// validateKind runs the type-specific check for a present value.
func validateKind(def model.FieldDef, value any) string {
	switch def.Kind {
	case model.FieldKindText:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("field %q must be a string", def.Key)
		}
		if def.Pattern != "" {
			re, err := regexp.Compile(def.Pattern)
			if err != nil {
				return fmt.Sprintf("field %q has an invalid pattern", def.Key)
			}
			if !re.MatchString(str) {
				return fmt.Sprintf("field %q does not match the expected format", def.Key)
			}
		}
	case model.FieldKindNumber:
		num, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("field %q must be a number", def.Key)
		}
		if def.Min != nil && num < *def.Min {
			return fmt.Sprintf("field %q value %v is below minimum %v", def.Key, num, *def.Min)
		}
		if def.Max != nil && num > *def.Max {
			return fmt.Sprintf("field %q value %v exceeds maximum %v", def.Key, num, *def.Max)
		}
	case model.FieldKindDate:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("field %q must be a date string", def.Key)
		}
		if !parseableDate(str) {
			return fmt.Sprintf("field %q must be a valid date", def.Key)
		}
	case model.FieldKindMultiSelect:
		if _, ok := toAnySlice(value); !ok {
			return fmt.Sprintf("field %q must be a list", def.Key)
		}
	}
	return ""
}

// isEmptyValue reports whether a value counts as absent for required-field
// purposes. An empty multi-select array is absent.
func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toAnySlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func parseableDate(value string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}
