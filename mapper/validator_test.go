package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFieldValueText(t *testing.T) {
	got, err := ValidateFieldValue("hello", "PlainText")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = ValidateFieldValue(42.0, "PlainText")
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	_, err = ValidateFieldValue(nil, "PlainText")
	assert.Error(t, err)
	_, err = ValidateFieldValue(nil, "RichText")
	assert.Error(t, err)
}

func TestValidateFieldValueEmail(t *testing.T) {
	got, err := ValidateFieldValue("ada@example.com", "Email")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got)

	_, err = ValidateFieldValue("not-an-email", "Email")
	assert.Error(t, err)
	_, err = ValidateFieldValue(nil, "Email")
	assert.Error(t, err)
}

func TestValidateFieldValueLink(t *testing.T) {
	got, err := ValidateFieldValue("https://example.com/x", "Link")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", got)

	_, err = ValidateFieldValue("ftp://example.com", "Link")
	assert.Error(t, err)
	_, err = ValidateFieldValue("nonsense", "Link")
	assert.Error(t, err)
}

func TestValidateFieldValueNumber(t *testing.T) {
	got, err := ValidateFieldValue(12.5, "Number")
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)

	got, err = ValidateFieldValue("12.5", "Number")
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)

	_, err = ValidateFieldValue("", "Number")
	assert.Error(t, err)
	_, err = ValidateFieldValue("twelve", "Number")
	assert.Error(t, err)
	_, err = ValidateFieldValue(nil, "Number")
	assert.Error(t, err)
}

func TestValidateFieldValueSwitch(t *testing.T) {
	for in, want := range map[interface{}]bool{
		true:         true,
		false:        false,
		"true":       true,
		"false":      false,
		float64(1):   true,
		float64(0):   false,
	} {
		got, err := ValidateFieldValue(in, "Switch")
		require.NoError(t, err, "%v", in)
		assert.Equal(t, want, got, "%v", in)
	}

	_, err := ValidateFieldValue("maybe", "Switch")
	assert.Error(t, err)
}

func TestValidateFieldValueDateTime(t *testing.T) {
	got, err := ValidateFieldValue("2024-06-01T10:30:00Z", "DateTime")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T10:30:00Z", got)

	_, err = ValidateFieldValue("last tuesday", "DateTime")
	assert.Error(t, err)
}

func TestValidateFieldValueMultiVariants(t *testing.T) {
	got, err := ValidateFieldValue("solo", "MultiOption")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"solo"}, got)

	arr := []interface{}{"a", "b"}
	got, err = ValidateFieldValue(arr, "MultiReference")
	require.NoError(t, err)
	assert.Equal(t, arr, got)

	_, err = ValidateFieldValue(42.0, "MultiOption")
	assert.Error(t, err)
}

func TestValidateFieldValueFiles(t *testing.T) {
	got, err := ValidateFieldValue("https://cdn.example.com/a.png", "Image")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", got)

	got, err = ValidateFieldValue(map[string]interface{}{"url": "https://cdn.example.com/b.png"}, "File")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/b.png", got)

	_, err = ValidateFieldValue(42.0, "Video")
	assert.Error(t, err)
}

func TestValidateFieldValueUnknownTypePassesThrough(t *testing.T) {
	got, err := ValidateFieldValue(map[string]interface{}{"x": 1.0}, "Exotic")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"x": 1.0}, got)
}

func TestValidateFieldData(t *testing.T) {
	fieldData := map[string]interface{}{
		"name":  "Widget",
		"count": "12",
		"phone": nil,
	}
	err := ValidateFieldData(fieldData, map[string]string{
		"name":  "PlainText",
		"count": "Number",
		"phone": "Phone",
	})
	require.NoError(t, err)
	assert.Equal(t, 12.0, fieldData["count"])
	_, present := fieldData["phone"]
	assert.False(t, present, "null optional values are dropped")

	err = ValidateFieldData(map[string]interface{}{"email": "junk"}, map[string]string{"email": "Email"})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
}

func TestValidateRequiredFields(t *testing.T) {
	fieldData := map[string]interface{}{
		"name": "Widget",
		"tags": []interface{}{},
	}

	// empty arrays count as present
	assert.NoError(t, ValidateRequiredFields(fieldData, []string{"name", "tags"}))

	err := ValidateRequiredFields(fieldData, []string{"name", "slug", "price"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slug")
	assert.Contains(t, err.Error(), "price")

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
