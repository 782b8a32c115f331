package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		key   string
		want  any
	}{
		{"plain object", `{"status":"recoverable"}`, "status", "recoverable"},
		{"json fence", "```json\n{\"status\": \"stuck\"}\n```", "status", "stuck"},
		{"bare fence", "```\n{\"n\": 2}\n```", "n", float64(2)},
		{"prose around", "Sure! Here it is: {\"ok\": true} hope that helps", "ok", true},
		{"control chars", "{\"a\":\x00 \"b\x07\"}", "a", "b"},
		{"trailing comma", "Result: {\"x\": [1, 2,], \"y\": \"z\",}", "y", "z"},
		{"brace inside string", `note {"msg": "use } carefully"} end`, "msg", "use } carefully"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseJSON(tt.input)
			require.NoError(t, err)
			obj, ok := v.(map[string]any)
			require.True(t, ok, "expected object, got %T", v)
			assert.Equal(t, tt.want, obj[tt.key])
		})
	}
}

func TestParseJSON_Array(t *testing.T) {
	v, err := ParseJSON("[1, 2, 3]")
	require.NoError(t, err)
	assert.Len(t, v, 3)
}

func TestParseJSON_Failures(t *testing.T) {
	_, err := ParseJSON("   ")
	assert.True(t, errors.Is(err, ErrEmptyJSON))

	_, err = ParseJSON("I could not decide, sorry.")
	assert.Error(t, err)

	_, err = ParseJSON(`{"unterminated": "yes"`)
	assert.Error(t, err)
}
