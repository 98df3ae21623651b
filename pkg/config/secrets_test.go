package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		EnvAnthropicAPIKey: "sk-ant-test123",
		EnvGoogleAPIKey:    "google-test",
	}

	require.NoError(t, EncryptSecretsFile(dir, "test-password-12345", secrets))
	assert.True(t, SecretsFileExists(dir))

	info, err := os.Stat(SecretsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	decrypted, err := DecryptSecretsFile(dir, "test-password-12345")
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)

	_, err = DecryptSecretsFile(dir, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestDecryptFixesPermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"A": "1"}))
	require.NoError(t, os.Chmod(SecretsPath(dir), 0644))

	_, err := DecryptSecretsFile(dir, "pw")
	require.NoError(t, err)

	info, err := os.Stat(SecretsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDecryptRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(SecretsPath(dir), []byte("short"), 0600))
	_, err := DecryptSecretsFile(dir, "pw")
	assert.ErrorContains(t, err, "too small")

	require.NoError(t, os.WriteFile(SecretsPath(dir), make([]byte, 64), 0600))
	_, err = DecryptSecretsFile(dir, "pw")
	assert.ErrorContains(t, err, "bad header")
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("FLOORPLAN_TEST_SECRET", "from-env")

	SetDecryptedSecrets(nil)
	v, err := GetSecret("FLOORPLAN_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	require.NoError(t, SetSecret("FLOORPLAN_TEST_SECRET", "from-file"))
	v, err = GetSecret("FLOORPLAN_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)
	assert.Equal(t, []string{"FLOORPLAN_TEST_SECRET"}, GetDecryptedSecretNames())
	assert.Error(t, SetSecret("", "x"))

	_, err = GetSecret("FLOORPLAN_TEST_MISSING")
	assert.Error(t, err)
}

func TestSaveAndLoadSecretsFile(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	dir := t.TempDir()

	SetDecryptedSecrets(nil)
	require.NoError(t, SetSecret(EnvOpenAIAPIKey, "sk-openai"))
	require.NoError(t, SaveSecretsToFile(dir, "pw"))

	SetDecryptedSecrets(nil)
	require.NoError(t, LoadSecretsFile(dir, "pw"))
	v, err := GetSecret(EnvOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", v)
}
