package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned by TokenStore.Load before the first login.
var ErrNoToken = errors.New("no stored token; run 'drivesync auth login'")

// TokenStore persists the OAuth token as JSON. When keyPath is set the token
// is age-encrypted to an X25519 identity kept at keyPath, which is generated
// on first save.
type TokenStore struct {
	tokenPath string
	keyPath   string
}

// NewTokenStore creates a TokenStore. An empty keyPath stores the token in
// plaintext.
func NewTokenStore(tokenPath, keyPath string) *TokenStore {
	return &TokenStore{tokenPath: tokenPath, keyPath: keyPath}
}

// Exists reports whether a token has been stored.
func (s *TokenStore) Exists() bool {
	_, err := os.Stat(s.tokenPath)
	return err == nil
}

// Save writes tok, replacing any previous token atomically.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if s.keyPath != "" {
		identity, err := s.ensureIdentity()
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		w, err := age.Encrypt(&buf, identity.Recipient())
		if err != nil {
			return fmt.Errorf("creating encrypted writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("encrypting token: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalizing encryption: %w", err)
		}
		data = buf.Bytes()
	}

	return writeFileAtomic(s.tokenPath, data, 0600)
}

// Load reads the stored token.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("reading token: %w", err)
	}

	if s.keyPath != "" {
		identity, err := s.loadIdentity()
		if err != nil {
			return nil, err
		}
		r, err := age.Decrypt(bytes.NewReader(data), identity)
		if err != nil {
			return nil, fmt.Errorf("decrypting token: %w", err)
		}
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading decrypted token: %w", err)
		}
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

// ensureIdentity loads the identity at keyPath, generating one if none exists.
func (s *TokenStore) ensureIdentity() (*age.X25519Identity, error) {
	identity, err := s.loadIdentity()
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	identity, err = age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating token key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := writeFileAtomic(s.keyPath, []byte(identity.String()+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("writing token key: %w", err)
	}
	return identity, nil
}

func (s *TokenStore) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading token key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing token key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", s.keyPath)
	}
	identity, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("token key %s is not an X25519 identity", s.keyPath)
	}
	return identity, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode of %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("moving %s into place: %w", path, err)
	}
	return nil
}
