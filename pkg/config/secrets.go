package config

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/scrypt"

	"floorplanner/pkg/logx"
)

// Provider API keys can live in <DataDir>/secrets.json.enc instead of the
// environment. File layout:
//
//	magic(4) | salt(16) | nonce(12) | AES-256-GCM(json map)
//
// The key is derived from the password with scrypt.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	gcmTagSize      = 16
	scryptN         = 1 << 15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32
)

//nolint:gochecknoglobals
var (
	secretsMagic = []byte("FPS1")

	secrets = struct {
		sync.RWMutex
		values map[string]string
	}{}
)

// ErrWrongPassword is returned when the secrets file cannot be opened with the
// given password.
var ErrWrongPassword = errors.New("decryption failed (wrong password or corrupted file)")

// SetDecryptedSecrets replaces the in-memory secrets. nil clears them.
func SetDecryptedSecrets(values map[string]string) {
	secrets.Lock()
	defer secrets.Unlock()
	secrets.values = values
}

// GetSecret resolves name from the decrypted secrets file, then from the
// environment.
func GetSecret(name string) (string, error) {
	secrets.RLock()
	v := secrets.values[name]
	secrets.RUnlock()
	if v != "" {
		return v, nil
	}
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames lists the names held in memory, sorted.
func GetDecryptedSecretNames() []string {
	secrets.RLock()
	defer secrets.RUnlock()
	names := make([]string, 0, len(secrets.values))
	for name := range secrets.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetSecret stores one secret in memory.
func SetSecret(name, value string) error {
	if name == "" {
		return errors.New("secret name is required")
	}
	secrets.Lock()
	defer secrets.Unlock()
	if secrets.values == nil {
		secrets.values = map[string]string{}
	}
	secrets.values[name] = value
	return nil
}

// SaveSecretsToFile encrypts the in-memory secrets into dataDir.
func SaveSecretsToFile(dataDir, password string) error {
	secrets.RLock()
	snapshot := make(map[string]string, len(secrets.values))
	for k, v := range secrets.values {
		snapshot[k] = v
	}
	secrets.RUnlock()
	return EncryptSecretsFile(dataDir, password, snapshot)
}

// SecretsPath returns the secrets file location under dataDir.
func SecretsPath(dataDir string) string {
	return filepath.Join(dataDir, secretsFileName)
}

// SecretsFileExists reports whether dataDir holds a secrets file.
func SecretsFileExists(dataDir string) bool {
	_, err := os.Stat(SecretsPath(dataDir))
	return err == nil
}

// aead derives the file key from password and salt.
func aead(password string, salt []byte) (cipher.AEAD, error) {
	pw := []byte(password)
	defer wipe(pw)
	key, err := scrypt.Key(pw, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer wipe(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// EncryptSecretsFile writes values to <dataDir>/secrets.json.enc with mode 0600.
func EncryptSecretsFile(dataDir, password string, values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer wipe(plaintext)

	header := make([]byte, saltSize+nonceSize)
	if _, err := rand.Read(header); err != nil {
		return fmt.Errorf("failed to generate salt and nonce: %w", err)
	}
	salt, nonce := header[:saltSize], header[saltSize:]

	gcm, err := aead(password, salt)
	if err != nil {
		return err
	}

	out := make([]byte, 0, len(secretsMagic)+len(header)+len(plaintext)+gcmTagSize)
	out = append(out, secretsMagic...)
	out = append(out, header...)
	out = gcm.Seal(out, nonce, plaintext, secretsMagic)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dataDir, err)
	}
	if err := os.WriteFile(SecretsPath(dataDir), out, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts <dataDir>/secrets.json.enc. A file
// readable by others is reset to 0600 first.
func DecryptSecretsFile(dataDir, password string) (map[string]string, error) {
	path := SecretsPath(dataDir)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		logx.NewLogger("config").Warn("secrets file has permissions %04o, resetting to 0600", perm)
		if err := os.Chmod(path, 0o600); err != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(data) < len(secretsMagic)+saltSize+nonceSize+gcmTagSize {
		return nil, errors.New("secrets file is corrupted or invalid format (too small)")
	}
	if !bytes.Equal(data[:len(secretsMagic)], secretsMagic) {
		return nil, errors.New("secrets file is corrupted or invalid format (bad header)")
	}
	body := data[len(secretsMagic):]
	salt, nonce, sealed := body[:saltSize], body[saltSize:saltSize+nonceSize], body[saltSize+nonceSize:]

	gcm, err := aead(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, secretsMagic)
	if err != nil {
		return nil, ErrWrongPassword
	}
	defer wipe(plaintext)

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return values, nil
}

// LoadSecretsFile decrypts the secrets file in dataDir and makes its values
// visible to GetSecret.
func LoadSecretsFile(dataDir, password string) error {
	values, err := DecryptSecretsFile(dataDir, password)
	if err != nil {
		return err
	}
	SetDecryptedSecrets(values)
	return nil
}
