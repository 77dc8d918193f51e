package keystore

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	envelopePrefix  = "PQKEY1\n"
	entrySuffix     = ".key"
	saltSize        = 16

	kdfTime     = 2
	kdfMemoryKB = 64 * 1024
	kdfThreads  = 1
)

// envelope is the on-disk form of one encrypted entry.
type envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// FileBackend stores one passphrase-encrypted file per principal. The file
// name encodes the principal ID, which is also bound to the ciphertext as
// additional data so entries cannot be swapped between principals.
type FileBackend struct {
	dir        string
	passphrase string

	mu sync.Mutex
}

// NewFileBackend creates dir if needed and returns a backend rooted there.
func NewFileBackend(dir, passphrase string) (*FileBackend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("file backend requires a directory")
	}
	if passphrase == "" {
		return nil, errors.New("file backend requires a passphrase")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	return &FileBackend{dir: dir, passphrase: passphrase}, nil
}

func (f *FileBackend) path(principalID string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(principalID))+entrySuffix)
}

func (f *FileBackend) Put(principalID string, secret []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.seal(principalID, secret)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(principalID)); err != nil {
		return fmt.Errorf("failed to store key file: %w", withoutPath(err))
	}
	return nil
}

func (f *FileBackend) Get(principalID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path(principalID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", withoutPath(err))
	}
	return f.open(principalID, raw)
}

func (f *FileBackend) Remove(principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(principalID))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove key file: %w", withoutPath(err))
	}
	return nil
}

// withoutPath drops file names from os errors. Entry names encode the
// principal ID, which must not reach log output.
func withoutPath(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return fmt.Errorf("%s: %w", linkErr.Op, linkErr.Err)
	}
	return err
}

func (f *FileBackend) List() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list key directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		id, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, entrySuffix))
		if err != nil {
			continue
		}
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FileBackend) seal(principalID string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveFileKey(f.passphrase, salt)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	env := envelope{
		Version:     envelopeVersion,
		KDF:         "argon2id",
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, []byte(principalID)),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(envelopePrefix), raw...), nil
}

func (f *FileBackend) open(principalID string, raw []byte) ([]byte, error) {
	if !bytes.HasPrefix(raw, []byte(envelopePrefix)) {
		return nil, fmt.Errorf("%w: unrecognized file format", ErrLocked)
	}
	var env envelope
	if err := json.Unmarshal(raw[len(envelopePrefix):], &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope", ErrLocked)
	}
	if env.Version != envelopeVersion || env.KDF != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported envelope", ErrLocked)
	}

	key := argon2.IDKey([]byte(f.passphrase), env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: malformed envelope", ErrLocked)
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(principalID))
	if err != nil {
		return nil, ErrLocked
	}
	return plaintext, nil
}

func deriveFileKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemoryKB, kdfThreads, chacha20poly1305.KeySize)
}
