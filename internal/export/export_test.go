package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNativeDocument(t *testing.T) {
	table := DefaultTable()

	rule, ok := table.Resolve("application/vnd.google-apps.document")
	require.True(t, ok)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", rule.MimeType)
	assert.Equal(t, "docx", rule.Extension)
}

func TestResolveAllNativeTypes(t *testing.T) {
	table := DefaultTable()

	cases := map[string]string{
		"application/vnd.google-apps.document":     "docx",
		"application/vnd.google-apps.spreadsheet":  "xlsx",
		"application/vnd.google-apps.presentation": "pptx",
		"application/vnd.google-apps.drawing":      "svg",
	}

	for mime, wantExt := range cases {
		rule, ok := table.Resolve(mime)
		require.True(t, ok, "expected mapping for %s", mime)
		assert.Equal(t, wantExt, rule.Extension)
		assert.NotEmpty(t, rule.MimeType)
	}
}

func TestResolveUnknownTypeFallsThrough(t *testing.T) {
	table := DefaultTable()

	_, ok := table.Resolve("text/csv")
	assert.False(t, ok)

	_, ok = table.Resolve("")
	assert.False(t, ok)
}

func TestIsFolder(t *testing.T) {
	assert.True(t, IsFolder("application/vnd.google-apps.folder"))
	assert.False(t, IsFolder("application/vnd.google-apps.document"))
	assert.False(t, IsFolder("text/plain"))
}
