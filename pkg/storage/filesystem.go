package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage persists evidence on disk under a base directory, addressed by
// the sha256 of the content.
type LocalStorage struct {
	baseDir   string
	signer    *SignedURLSigner
	publicURL string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
// publicURL is the route prefix that serves signed tokens, e.g. /api/v1/evidence/.
func NewLocalStorage(baseDir string, signer *SignedURLSigner, publicURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./evidence"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	if !strings.HasSuffix(publicURL, "/") {
		publicURL += "/"
	}
	return &LocalStorage{baseDir: baseDir, signer: signer, publicURL: publicURL}, nil
}

// Put writes the file once; identical content maps to the same reference.
func (s *LocalStorage) Put(_ context.Context, file Evidence) (string, error) {
	if len(file.Data) == 0 {
		return "", fmt.Errorf("evidence is empty")
	}
	sum := sha256.Sum256(file.Data)
	ref := hex.EncodeToString(sum[:])
	path := s.resolve(ref)

	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare evidence directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, file.Data, 0o644); err != nil {
		return "", fmt.Errorf("write evidence file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit evidence file: %w", err)
	}
	return ref, nil
}

// ReadURL returns a signed, expiring link served by the API.
func (s *LocalStorage) ReadURL(reference string) (string, error) {
	if !validDigest(reference) {
		return "", fmt.Errorf("invalid evidence reference %q", reference)
	}
	token, _, err := s.signer.Sign(reference)
	if err != nil {
		return "", err
	}
	return s.publicURL + token, nil
}

// OpenSigned verifies the token and opens the referenced file.
func (s *LocalStorage) OpenSigned(token string) (*os.File, error) {
	ref, err := s.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	if !validDigest(ref) {
		return nil, fmt.Errorf("invalid evidence reference")
	}
	file, err := os.Open(s.resolve(ref))
	if err != nil {
		return nil, fmt.Errorf("open evidence file: %w", err)
	}
	return file, nil
}

// resolve shards files by the first two hex characters.
func (s *LocalStorage) resolve(ref string) string {
	return filepath.Join(s.baseDir, ref[:2], ref)
}

func validDigest(ref string) bool {
	if len(ref) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(ref)
	return err == nil
}
