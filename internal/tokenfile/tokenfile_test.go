package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	require.NoError(t, Save(path, testToken(), "user@example.com"))

	tok, account, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "access-abc", tok.AccessToken)
	assert.Equal(t, "refresh-xyz", tok.RefreshToken)
	assert.Equal(t, "user@example.com", account)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	tok, account, err := Load(filepath.Join(t.TempDir(), "nope.json"))

	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Empty(t, account)
}

func TestLoadRejectsFileWithoutToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"account":"x@y.z"}`), 0o600))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoadRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestSaveCreatesParentDirAndRestrictsPerms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "token.json")

	require.NoError(t, Save(path, testToken(), ""))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, testToken(), "old@example.com"))

	tok := testToken()
	tok.AccessToken = "access-new"
	require.NoError(t, Save(path, tok, "new@example.com"))

	got, account, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-new", got.AccessToken)
	assert.Equal(t, "new@example.com", account)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, testToken(), ""))

	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Second remove is a no-op.
	require.NoError(t, Remove(path))
}
