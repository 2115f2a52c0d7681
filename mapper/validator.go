/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mapper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError marks an event as non-retriable: the payload itself is
// wrong and retrying will never fix it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
	}
	return e.Message
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateFieldValue coerces a mapped value against a target field type and
// returns the value to transmit. nil with a nil error means "omit this
// field". Unknown types pass through untouched.
func ValidateFieldValue(value interface{}, fieldType string) (interface{}, error) {
	switch fieldType {
	case "PlainText", "RichText":
		if value == nil {
			return nil, fmt.Errorf("text field cannot be null")
		}
		return toString(value), nil

	case "Email":
		if value == nil {
			return nil, fmt.Errorf("email field cannot be null")
		}
		email := toString(value)
		if !emailPattern.MatchString(email) {
			return nil, fmt.Errorf("invalid email address: %s", email)
		}
		return email, nil

	case "Phone":
		if value == nil {
			return nil, nil
		}
		return toString(value), nil

	case "Link":
		if value == nil {
			return nil, fmt.Errorf("URL field cannot be null")
		}
		raw := toString(value)
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, fmt.Errorf("invalid URL: %s, expected http:// or https://", raw)
		}
		return raw, nil

	case "Number":
		if value == nil {
			return nil, fmt.Errorf("invalid number value: null")
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("invalid number value: empty string")
		}
		d, err := toDecimal(value)
		if err != nil {
			return nil, fmt.Errorf("invalid number value: %v", value)
		}
		f, _ := d.Float64()
		return f, nil

	case "Switch":
		switch t := value.(type) {
		case nil:
			return nil, nil
		case bool:
			return t, nil
		case string:
			if t == "true" {
				return true, nil
			}
			if t == "false" {
				return false, nil
			}
		case float64:
			if t == 1 {
				return true, nil
			}
			if t == 0 {
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)

	case "DateTime":
		if value == nil {
			return nil, nil
		}
		if s, ok := value.(string); ok {
			if _, err := toTime(s); err != nil {
				return nil, fmt.Errorf("expected valid date string, got %q", s)
			}
			return s, nil
		}
		if t, err := toTime(value); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05.000Z"), nil
		}
		return nil, fmt.Errorf("expected valid date, got %T", value)

	case "Option", "Reference":
		switch value.(type) {
		case nil:
			return nil, nil
		case string:
			return value, nil
		}
		return nil, fmt.Errorf("expected string for %s field, got %T", fieldType, value)

	case "MultiOption", "MultiReference", "MultiImage":
		switch t := value.(type) {
		case nil:
			return nil, nil
		case []interface{}:
			return t, nil
		case string:
			return []interface{}{t}, nil
		}
		return nil, fmt.Errorf("expected array for %s field, got %T", fieldType, value)

	case "Image", "File", "Video", "FileRef":
		switch t := value.(type) {
		case nil:
			return nil, nil
		case string:
			return t, nil
		case map[string]interface{}:
			if u, ok := t["url"].(string); ok {
				return u, nil
			}
		}
		return nil, fmt.Errorf("expected URL string or file object, got %T", value)

	default:
		return value, nil
	}
}

// ValidateFieldData coerces every field with a declared type, in place.
// A failing field produces a ValidationError naming it.
func ValidateFieldData(fieldData map[string]interface{}, fieldTypes map[string]string) error {
	for field, fieldType := range fieldTypes {
		value, present := fieldData[field]
		if !present {
			continue
		}
		coerced, err := ValidateFieldValue(value, fieldType)
		if err != nil {
			return &ValidationError{Field: field, Message: err.Error()}
		}
		if coerced == nil {
			delete(fieldData, field)
			continue
		}
		fieldData[field] = coerced
	}
	return nil
}

// ValidateRequiredFields rejects field data missing any required target
// field. Empty arrays count as present.
func ValidateRequiredFields(fieldData map[string]interface{}, required []string) error {
	var missing []string
	for _, field := range required {
		value, ok := fieldData[field]
		if !ok || value == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Message: "missing required fields: " + strings.Join(missing, ", ")}
	}
	return nil
}
