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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TransformFunc mutates a resolved mapping value. Args come straight from
// the rule's transform_args JSON array.
type TransformFunc func(value interface{}, args ...interface{}) (interface{}, error)

var titleCaser = cases.Title(language.English)

var transforms = map[string]TransformFunc{
	// string case
	"uppercase": func(v interface{}, _ ...interface{}) (interface{}, error) {
		return strings.ToUpper(toString(v)), nil
	},
	"lowercase": func(v interface{}, _ ...interface{}) (interface{}, error) {
		return strings.ToLower(toString(v)), nil
	},
	"title": func(v interface{}, _ ...interface{}) (interface{}, error) {
		return titleCaser.String(toString(v)), nil
	},
	"camel": func(v interface{}, _ ...interface{}) (interface{}, error) {
		words := splitWords(toString(v))
		for i := range words {
			if i == 0 {
				words[i] = strings.ToLower(words[i])
			} else {
				words[i] = titleCaser.String(strings.ToLower(words[i]))
			}
		}
		return strings.Join(words, ""), nil
	},
	"pascal": func(v interface{}, _ ...interface{}) (interface{}, error) {
		words := splitWords(toString(v))
		for i := range words {
			words[i] = titleCaser.String(strings.ToLower(words[i]))
		}
		return strings.Join(words, ""), nil
	},
	"snake": func(v interface{}, _ ...interface{}) (interface{}, error) {
		return strings.Join(lowerWords(toString(v)), "_"), nil
	},
	"kebab": func(v interface{}, _ ...interface{}) (interface{}, error) {
		return strings.Join(lowerWords(toString(v)), "-"), nil
	},
	"capital": func(v interface{}, _ ...interface{}) (interface{}, error) {
		words := splitWords(toString(v))
		for i := range words {
			words[i] = titleCaser.String(strings.ToLower(words[i]))
		}
		return strings.Join(words, " "), nil
	},

	// string manipulation
	"trim": func(v interface{}, _ ...interface{}) (interface{}, error) {
		return strings.TrimSpace(toString(v)), nil
	},
	"truncate": func(v interface{}, args ...interface{}) (interface{}, error) {
		length := argInt(args, 0, 100)
		s := toString(v)
		if len(s) > length {
			s = s[:length]
		}
		return s, nil
	},
	"replace": func(v interface{}, args ...interface{}) (interface{}, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("replace requires search and replacement arguments")
		}
		re, err := regexp.Compile(toString(args[0]))
		if err != nil {
			return nil, fmt.Errorf("replace pattern: %w", err)
		}
		return re.ReplaceAllString(toString(v), toString(args[1])), nil
	},
	"split": func(v interface{}, args ...interface{}) (interface{}, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("split requires a delimiter argument")
		}
		parts := strings.Split(toString(v), toString(args[0]))
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},
	"join": func(v interface{}, args ...interface{}) (interface{}, error) {
		delim := ", "
		if len(args) > 0 {
			delim = toString(args[0])
		}
		arr, ok := v.([]interface{})
		if !ok {
			return toString(v), nil
		}
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = toString(e)
		}
		return strings.Join(parts, delim), nil
	},

	// numeric
	"round": func(v interface{}, args ...interface{}) (interface{}, error) {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		f, _ := d.Round(int32(argInt(args, 0, 0))).Float64()
		return f, nil
	},
	"floor": func(v interface{}, _ ...interface{}) (interface{}, error) {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		f, _ := d.Floor().Float64()
		return f, nil
	},
	"ceil": func(v interface{}, _ ...interface{}) (interface{}, error) {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		f, _ := d.Ceil().Float64()
		return f, nil
	},
	"abs": func(v interface{}, _ ...interface{}) (interface{}, error) {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		f, _ := d.Abs().Float64()
		return f, nil
	},
	"toFixed": func(v interface{}, args ...interface{}) (interface{}, error) {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		return d.StringFixed(int32(argInt(args, 0, 2))), nil
	},

	// dates
	"formatDate": func(v interface{}, args ...interface{}) (interface{}, error) {
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		layout := "2006-01-02"
		if len(args) > 0 {
			layout = dateLayout(toString(args[0]))
		}
		return t.Format(layout), nil
	},
	"isoDate": func(v interface{}, _ ...interface{}) (interface{}, error) {
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format("2006-01-02T15:04:05.000Z"), nil
	},
	"timestamp": func(v interface{}, _ ...interface{}) (interface{}, error) {
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return float64(t.UnixMilli()), nil
	},

	// arrays
	"first": func(v interface{}, _ ...interface{}) (interface{}, error) {
		if arr, ok := v.([]interface{}); ok {
			if len(arr) == 0 {
				return nil, nil
			}
			return arr[0], nil
		}
		return v, nil
	},
	"last": func(v interface{}, _ ...interface{}) (interface{}, error) {
		if arr, ok := v.([]interface{}); ok {
			if len(arr) == 0 {
				return nil, nil
			}
			return arr[len(arr)-1], nil
		}
		return v, nil
	},
	"length": func(v interface{}, _ ...interface{}) (interface{}, error) {
		if arr, ok := v.([]interface{}); ok {
			return float64(len(arr)), nil
		}
		return float64(0), nil
	},
	"unique": func(v interface{}, _ ...interface{}) (interface{}, error) {
		arr, ok := v.([]interface{})
		if !ok {
			return []interface{}{v}, nil
		}
		seen := make(map[string]bool, len(arr))
		var out []interface{}
		for _, e := range arr {
			key := fmt.Sprintf("%v", e)
			if !seen[key] {
				seen[key] = true
				out = append(out, e)
			}
		}
		return out, nil
	},

	// type conversion
	"toString": func(v interface{}, _ ...interface{}) (interface{}, error) {
		return toString(v), nil
	},
	"toNumber": func(v interface{}, _ ...interface{}) (interface{}, error) {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		f, _ := d.Float64()
		return f, nil
	},
	"toBoolean": func(v interface{}, _ ...interface{}) (interface{}, error) {
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			return t != "" && t != "false" && t != "0", nil
		case float64:
			return t != 0, nil
		case nil:
			return false, nil
		default:
			return true, nil
		}
	},
	"toArray": func(v interface{}, _ ...interface{}) (interface{}, error) {
		if arr, ok := v.([]interface{}); ok {
			return arr, nil
		}
		return []interface{}{v}, nil
	},

	"default": func(v interface{}, args ...interface{}) (interface{}, error) {
		if v != nil {
			return v, nil
		}
		if len(args) > 0 {
			return args[0], nil
		}
		return nil, nil
	},
}

// ApplyTransform runs a named transform over a value.
func ApplyTransform(name string, value interface{}, args ...interface{}) (interface{}, error) {
	fn, ok := transforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform: %q", name)
	}
	return fn(value, args...)
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number: %q", t)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("not a number: %v", v)
	}
}

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range timeFormats {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparsable date: %q", t)
	case float64:
		// unix milliseconds
		return time.UnixMilli(int64(t)), nil
	default:
		return time.Time{}, fmt.Errorf("unparsable date: %v", v)
	}
}

// dateLayout translates the common yyyy-MM-dd style tokens mapping authors
// write into a Go time layout.
func dateLayout(tokens string) string {
	r := strings.NewReplacer(
		"yyyy", "2006",
		"MM", "01",
		"dd", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
	)
	return r.Replace(tokens)
}

func argInt(args []interface{}, idx, fallback int) int {
	if idx >= len(args) {
		return fallback
	}
	switch t := args[idx].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return fallback
}

// splitWords breaks an arbitrary string into words on separators and
// case boundaries, the way change-case style helpers do.
func splitWords(s string) []string {
	// insert separators at lower->Upper boundaries, then split on
	// non-alphanumeric runs
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && isUpper(r) && isLowerOrDigit(runes[i-1]) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	fields := strings.FieldsFunc(b.String(), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	return fields
}

func lowerWords(s string) []string {
	words := splitWords(s)
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	return words
}

func isUpper(r rune) bool        { return r >= 'A' && r <= 'Z' }
func isLowerOrDigit(r rune) bool { return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' }
