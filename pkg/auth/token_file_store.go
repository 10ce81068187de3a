package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	errs "tweetharvest/pkg/errors"
)

// TokenFileStore reads the bearer token from the first line of a plain file.
// It is read-only.
type TokenFileStore struct {
	path     string
	required bool
}

// NewTokenFileStore creates a store over path. A required store reports a
// missing or empty file as a configuration error.
func NewTokenFileStore(path string, required bool) *TokenFileStore {
	return &TokenFileStore{path: path, required: required}
}

// Name identifies the store
func (f *TokenFileStore) Name() string { return "file:" + f.path }

// Required reports whether the file must exist
func (f *TokenFileStore) Required() bool { return f.required }

// Store is not supported for token files
func (f *TokenFileStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve reads the token. The name is ignored; a token file holds one token.
func (f *TokenFileStore) Retrieve(name string) (*Credential, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			if f.required {
				return nil, errs.New(errs.ErrorTypeConfig, 0, "token file %s not found", f.path)
			}
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer file.Close()

	var token string
	scanner := bufio.NewScanner(file)
	if scanner.Scan() {
		token = strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if token == "" {
		if f.required {
			return nil, errs.New(errs.ErrorTypeConfig, 0, "token file %s is empty", f.path)
		}
		return nil, ErrCredentialsNotFound
	}

	modified := time.Time{}
	if info, err := file.Stat(); err == nil {
		modified = info.ModTime()
	}
	if name == "" {
		name = DefaultName
	}
	return &Credential{Name: name, Token: token, LastModified: modified}, nil
}

// Delete is not supported for token files
func (f *TokenFileStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the file holds a token
func (f *TokenFileStore) Exists(name string) bool {
	cred, err := f.Retrieve(name)
	return err == nil && cred != nil
}
