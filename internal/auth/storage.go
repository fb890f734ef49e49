package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNoCredentials is returned by storage backends for unknown profiles
var ErrNoCredentials = errors.New("no stored credentials")

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateProfile rejects names that cannot be used as a file name or a
// keyring account
func ValidateProfile(profile string) error {
	if !profilePattern.MatchString(profile) {
		return fmt.Errorf("invalid profile name %q: use letters, digits, '.', '_' or '-'", profile)
	}
	return nil
}

func noCredentials(profile string) error {
	return fmt.Errorf("%w for profile '%s'", ErrNoCredentials, profile)
}

// StorageBackend persists the serialized credentials of each profile
type StorageBackend interface {
	Save(profile string, data []byte) error
	Load(profile string) ([]byte, error)
	Delete(profile string) error
	List() ([]string, error)
	Name() string
}

// KeyringStorage keeps tokens in the system keyring. The keyring cannot be
// enumerated, so profile names are tracked in a JSON index next to the config.
type KeyringStorage struct {
	serviceName string
	indexPath   string
	mu          sync.Mutex
}

// NewKeyringStorage creates a keyring backend; indexPath holds the profile list
func NewKeyringStorage(serviceName, indexPath string) *KeyringStorage {
	return &KeyringStorage{serviceName: serviceName, indexPath: indexPath}
}

func (s *KeyringStorage) Save(profile string, data []byte) error {
	if err := keyring.Set(s.serviceName, profile, string(data)); err != nil {
		return err
	}
	return s.updateIndex(func(set map[string]bool) { set[profile] = true })
}

func (s *KeyringStorage) Load(profile string) ([]byte, error) {
	data, err := keyring.Get(s.serviceName, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, noCredentials(profile)
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (s *KeyringStorage) Delete(profile string) error {
	err := keyring.Delete(s.serviceName, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return noCredentials(profile)
	}
	if err != nil {
		return err
	}
	return s.updateIndex(func(set map[string]bool) { delete(set, profile) })
}

func (s *KeyringStorage) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

func (s *KeyringStorage) Name() string {
	return "system-keyring"
}

func (s *KeyringStorage) readIndex() (map[string]bool, error) {
	set := make(map[string]bool)
	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("corrupt profile index %s: %w", s.indexPath, err)
	}
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (s *KeyringStorage) updateIndex(mutate func(map[string]bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.readIndex()
	if err != nil {
		return err
	}
	mutate(set)
	data, err := json.Marshal(sortedKeys(set))
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath, data)
}

// sealer transforms credential bytes on their way to and from disk
type sealer interface {
	seal(plaintext []byte) ([]byte, error)
	open(sealed []byte) ([]byte, error)
}

type plainSealer struct{}

func (plainSealer) seal(p []byte) ([]byte, error) { return p, nil }
func (plainSealer) open(p []byte) ([]byte, error) { return p, nil }

// gcmSealer encrypts with AES-256-GCM; the nonce is prepended to the output
type gcmSealer struct {
	aead cipher.AEAD
}

func newGCMSealer(key []byte) (*gcmSealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &gcmSealer{aead: aead}, nil
}

func (g *gcmSealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return g.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (g *gcmSealer) open(sealed []byte) ([]byte, error) {
	n := g.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("credential file is truncated")
	}
	plaintext, err := g.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return plaintext, nil
}

// FileStorage keeps one file per profile under <dir>/credentials
type FileStorage struct {
	dir  string
	ext  string
	name string
	s    sealer
}

// NewEncryptedFileStorage stores AES-GCM sealed files. The key lives in
// <baseDir>/.keyfile and is created on first use.
func NewEncryptedFileStorage(baseDir string) (*FileStorage, error) {
	key, err := loadOrCreateKey(filepath.Join(baseDir, ".keyfile"))
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	s, err := newGCMSealer(key)
	if err != nil {
		return nil, err
	}
	return &FileStorage{dir: filepath.Join(baseDir, "credentials"), ext: ".enc", name: "encrypted-file", s: s}, nil
}

// NewPlainFileStorage stores credentials as plain JSON. Development only.
func NewPlainFileStorage(baseDir string) *FileStorage {
	return &FileStorage{dir: filepath.Join(baseDir, "credentials"), ext: ".json", name: "plain-file", s: plainSealer{}}
}

func (f *FileStorage) path(profile string) string {
	return filepath.Join(f.dir, profile+f.ext)
}

func (f *FileStorage) Save(profile string, data []byte) error {
	sealed, err := f.s.seal(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return writeFileAtomic(f.path(profile), sealed)
}

func (f *FileStorage) Load(profile string) ([]byte, error) {
	sealed, err := os.ReadFile(f.path(profile))
	if os.IsNotExist(err) {
		return nil, noCredentials(profile)
	}
	if err != nil {
		return nil, err
	}
	return f.s.open(sealed)
}

func (f *FileStorage) Delete(profile string) error {
	err := os.Remove(f.path(profile))
	if os.IsNotExist(err) {
		return noCredentials(profile)
	}
	return err
}

// List returns the profiles with a credential file of this backend's kind
func (f *FileStorage) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	profiles := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), f.ext) {
			continue
		}
		profiles = append(profiles, strings.TrimSuffix(e.Name(), f.ext))
	}
	sort.Strings(profiles)
	return profiles, nil
}

func (f *FileStorage) Name() string {
	return f.name
}

// loadOrCreateKey reads a base64 key file, replacing it when missing or unusable
func loadOrCreateKey(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, []byte(base64.StdEncoding.EncodeToString(key))); err != nil {
		return nil, err
	}
	return key, nil
}

// writeFileAtomic writes via a temp file so a crash never leaves a half
// written token behind. Files are private to the user.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
