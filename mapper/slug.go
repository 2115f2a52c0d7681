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
	"regexp"
	"strings"
)

const maxSlugLength = 100

var slugStrip = regexp.MustCompile(`[^a-z0-9-]`)
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// GenerateSlug renders a slug template against the record, then normalizes
// the result into a lowercase kebab slug no longer than 100 characters.
// An empty result falls back to "item" so a create call never ships an
// empty slug.
func GenerateSlug(template string, record map[string]interface{}) string {
	slug := RenderTemplate(template, record)
	slug = strings.Join(lowerWords(slug), "-")
	slug = slugStrip.ReplaceAllString(slug, "")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "item"
	}
	return slug
}

// ValidSlug reports whether a string satisfies the target system's slug
// rules: lowercase alphanumeric segments joined by single hyphens, at most
// 100 characters.
func ValidSlug(slug string) bool {
	if slug == "" || len(slug) > maxSlugLength {
		return false
	}
	return slugPattern.MatchString(slug)
}

var templatePlaceholder = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// RenderTemplate substitutes {{dotted.path}} placeholders with stringified
// values from the record. Missing paths render as the empty string.
func RenderTemplate(template string, record map[string]interface{}) string {
	return templatePlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(templatePlaceholder.FindStringSubmatch(match)[1])
		value := GetNestedValue(record, path)
		if value == nil {
			return ""
		}
		return toString(value)
	})
}
