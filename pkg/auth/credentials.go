package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultName is the credential name used when none is given
const DefaultName = "default"

// DefaultTokenFile is read when present and no token file is configured
const DefaultTokenFile = "bearer_token.txt"

// Credential is an app-only bearer token
type Credential struct {
	Name         string    `json:"name"`
	Token        string    `json:"token"`
	LastModified time.Time `json:"last_modified"`
	// Source names the store the credential was read from
	Source string `json:"-"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Name identifies the store in messages
	Name() string

	// Store saves a credential under its name
	Store(cred *Credential) error

	// Retrieve gets the credential stored under name
	Retrieve(name string) (*Credential, error)

	// Delete removes the credential stored under name
	Delete(name string) error

	// Exists checks if a credential is stored under name
	Exists(name string) bool
}

// Manager resolves the bearer token from an ordered list of stores
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the store chain. A non-empty tokenFile is the only
// source consulted and must exist. Otherwise the chain is: ./bearer_token.txt
// when present, the TWEETHARVEST_BEARER_TOKEN variable, the system keyring
// when available, and the encrypted credentials file.
func NewManager(tokenFile string) (*Manager, error) {
	if tokenFile != "" {
		return &Manager{stores: []CredentialStore{NewTokenFileStore(tokenFile, true)}}, nil
	}

	stores := []CredentialStore{
		NewTokenFileStore(DefaultTokenFile, false),
		NewEnvironmentStore(),
	}

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores, in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Stores returns the names of the configured stores in lookup order
func (m *Manager) Stores() []string {
	names := make([]string, len(m.stores))
	for i, s := range m.stores {
		names[i] = s.Name()
	}
	return names
}

// Store saves cred in the first store that accepts writes
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || strings.TrimSpace(cred.Token) == "" {
		return ErrInvalidCredentials
	}
	if cred.Name == "" {
		cred.Name = DefaultName
	}
	cred.Token = strings.TrimSpace(cred.Token)
	cred.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			cred.Source = store.Name()
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Resolve returns the credential called name from the first store holding
// it. A required token file that cannot be read stops the lookup.
func (m *Manager) Resolve(name string) (*Credential, error) {
	if name == "" {
		name = DefaultName
	}

	for _, store := range m.stores {
		cred, err := store.Retrieve(name)
		if err == nil && cred != nil {
			cred.Source = store.Name()
			return cred, nil
		}
		if fs, ok := store.(*TokenFileStore); ok && fs.Required() {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: no bearer token in %s", ErrCredentialsNotFound, strings.Join(m.Stores(), ", "))
}

// Delete removes name from every store that holds it
func (m *Manager) Delete(name string) error {
	if name == "" {
		name = DefaultName
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		err := store.Delete(name)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrCredentialsNotFound):
		default:
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
	}
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "tweetharvest")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "tweetharvest")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "tweetharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "tweetharvest")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredential returns a copy of cred with the token masked
func SanitizeCredential(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	out := *cred
	out.Token = MaskToken(cred.Token)
	return &out
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
