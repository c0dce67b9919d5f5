// Package common provides configuration, logging and variable replacement shared by every command.
//
// Scenario files may reference variables with the {name} syntax. References are
// replaced from the [variables] config table merged with the scenario's own variables:
//
//	Input:     fill value = "{admin_password}"
//	Variables: {"admin_password": "admin123"}
//	Output:    fill value = "admin123"
//
// Replacement is case-sensitive. Missing variables are logged as warnings and left
// unchanged so the scenario fails visibly instead of typing an empty value.
package common

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"
)

// varRefPattern matches {name} references in strings
// Allows alphanumeric characters, hyphens, and underscores
var varRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences replaces all {name} references in input with values from vars.
// Unknown references are left unchanged and logged.
func ReplaceKeyReferences(input string, vars map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	for _, match := range varRefPattern.FindAllStringSubmatch(input, -1) {
		if _, exists := vars[match[1]]; !exists {
			logger.Warn().
				Str("reference", match[0]).
				Str("variable", match[1]).
				Msg("Unresolved variable reference")
		}
	}

	return varRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		if value, exists := vars[match[1:len(match)-1]]; exists {
			return value
		}
		return match
	})
}

// UnresolvedReferences returns the {name} references in input that vars cannot resolve
func UnresolvedReferences(input string, vars map[string]string) []string {
	var missing []string
	for _, match := range varRefPattern.FindAllStringSubmatch(input, -1) {
		if _, exists := vars[match[1]]; !exists {
			missing = append(missing, match[1])
		}
	}
	return missing
}

// ReplaceInStruct uses reflection to recursively replace {name} references in a struct's
// string fields, including nested structs, pointers, string maps and slices of strings or structs.
// The struct must be passed as a pointer for in-place mutation.
func ReplaceInStruct(v interface{}, vars map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("ReplaceInStruct requires a pointer, got %T", v)
	}

	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got pointer to %v", val.Kind())
	}

	return replaceInValue(val, "", vars, logger)
}

func replaceInValue(val reflect.Value, path string, vars map[string]string, logger arbor.ILogger) error {
	switch val.Kind() {
	case reflect.String:
		if !val.CanSet() {
			return nil
		}
		oldValue := val.String()
		newValue := ReplaceKeyReferences(oldValue, vars, logger)
		if oldValue != newValue {
			val.SetString(newValue)
			logger.Debug().
				Str("field", path).
				Msg("Replaced variable reference")
		}

	case reflect.Struct:
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			if !field.CanSet() {
				continue
			}
			if err := replaceInValue(field, joinFieldPath(path, typ.Field(i).Name), vars, logger); err != nil {
				return err
			}
		}

	case reflect.Ptr:
		if !val.IsNil() {
			return replaceInValue(val.Elem(), path, vars, logger)
		}

	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String || val.Type().Elem().Kind() != reflect.String {
			return nil
		}
		for _, key := range val.MapKeys() {
			oldValue := val.MapIndex(key).String()
			newValue := ReplaceKeyReferences(oldValue, vars, logger)
			if oldValue != newValue {
				val.SetMapIndex(key, reflect.ValueOf(newValue).Convert(val.Type().Elem()))
				logger.Debug().
					Str("field", path).
					Str("key", key.String()).
					Msg("Replaced variable reference in map")
			}
		}

	case reflect.Slice:
		for i := 0; i < val.Len(); i++ {
			if err := replaceInValue(val.Index(i), fmt.Sprintf("%s[%d]", path, i), vars, logger); err != nil {
				return fmt.Errorf("failed to replace in %s[%d]: %w", path, i, err)
			}
		}
	}

	return nil
}

func joinFieldPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
