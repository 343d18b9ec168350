package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivemirror/drivemirror/internal/drive"
	"github.com/drivemirror/drivemirror/internal/export"
)

func names(lns []localName) []string {
	out := make([]string, len(lns))
	for i, ln := range lns {
		out[i] = ln.name
	}

	return out
}

func TestAssignLocalNamesOrdersDeterministically(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	children := []drive.Item{
		file("3", "zeta.txt", csvMime, ts),
		file("1", "alpha.txt", csvMime, ts),
		folder("2", "middle"),
	}

	lns := assignLocalNames(children, export.DefaultTable())
	assert.Equal(t, []string{"alpha.txt", "middle", "zeta.txt"}, names(lns))
}

func TestAssignLocalNamesAppendsExportExtension(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lns := assignLocalNames([]drive.Item{
		file("a", "Budget", "application/vnd.google-apps.spreadsheet", ts),
		file("b", "notes.txt", "text/plain", ts),
	}, export.DefaultTable())

	require.Len(t, lns, 2)
	assert.Equal(t, "Budget.xlsx", lns[0].name)
	assert.True(t, lns[0].exported)
	assert.Equal(t, "notes.txt", lns[1].name)
	assert.False(t, lns[1].exported)
}

func TestAssignLocalNamesDisambiguatesAcrossKinds(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// A folder and a file with the same display name share one namespace.
	lns := assignLocalNames([]drive.Item{
		folder("f", "Archive"),
		file("g", "Archive", "application/octet-stream", ts),
	}, export.DefaultTable())

	require.Len(t, lns, 2)
	assert.NotEqual(t, lns[0].name, lns[1].name)
}

func TestAssignLocalNamesTripleCollision(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lns := assignLocalNames([]drive.Item{
		file("a", "dup.txt", "text/plain", ts),
		file("b", "dup.txt", "text/plain", ts.Add(time.Minute)),
		file("c", "dup.txt", "text/plain", ts.Add(2*time.Minute)),
	}, export.DefaultTable())

	// Raw files carry their extension in the display name, so the
	// disambiguation suffix lands after it.
	assert.Equal(t, []string{"dup.txt", "dup.txt (1)", "dup.txt (1) (1)"}, names(lns))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a_b", sanitizeName("a/b"))
	assert.Equal(t, "plain.txt", sanitizeName("plain.txt"))
	assert.Equal(t, "untitled", sanitizeName(""))
	assert.Equal(t, "untitled", sanitizeName("."))
	assert.Equal(t, "untitled", sanitizeName(".."))
}

func TestSanitizeNameNormalizesToNFC(t *testing.T) {
	// Base letter + combining accent (NFD) normalizes to the precomposed
	// form, keeping names stable across macOS and Linux filesystems.
	assert.Equal(t, "caf\u00e9", sanitizeName("cafe\u0301"))
}
