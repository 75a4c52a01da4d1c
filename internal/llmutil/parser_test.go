// File: internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Key string `json:"semantic_key"`
}

func TestParseJSONResponse(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		got, err := ParseJSONResponse[payload](`{"semantic_key":"user.contact_info.email_primary"}`)
		require.NoError(t, err)
		assert.Equal(t, "user.contact_info.email_primary", got.Key)
	})

	t.Run("markdown fenced object", func(t *testing.T) {
		response := "```json\n{\"semantic_key\": \"user.personal_info.first_name\"}\n```"
		got, err := ParseJSONResponse[payload](response)
		require.NoError(t, err)
		assert.Equal(t, "user.personal_info.first_name", got.Key)
	})

	t.Run("fenced array", func(t *testing.T) {
		response := "```\n[{\"semantic_key\":\"a\"},{\"semantic_key\":\"b\"}]\n```"
		got, err := ParseJSONResponse[[]payload](response)
		require.NoError(t, err)
		require.Len(t, *got, 2)
		assert.Equal(t, "b", (*got)[1].Key)
	})

	t.Run("object embedded in prose", func(t *testing.T) {
		response := `Sure! Here is the mapping you asked for: {"semantic_key":"user.address_primary.city"} Hope that helps.`
		got, err := ParseJSONResponse[payload](response)
		require.NoError(t, err)
		assert.Equal(t, "user.address_primary.city", got.Key)
	})

	t.Run("empty response errors", func(t *testing.T) {
		_, err := ParseJSONResponse[payload]("   ")
		require.Error(t, err)
	})

	t.Run("no JSON at all errors", func(t *testing.T) {
		_, err := ParseJSONResponse[payload]("I cannot answer that.")
		require.Error(t, err)
	})

	t.Run("malformed extracted payload errors", func(t *testing.T) {
		_, err := ParseJSONResponse[payload](`{"semantic_key": }`)
		require.Error(t, err)
	})
}

func TestExtractJSONPayload(t *testing.T) {
	payload, err := ExtractJSONPayload("prefix [1, 2, 3] suffix")
	require.NoError(t, err)
	assert.Equal(t, "[1, 2, 3]", payload)
}
