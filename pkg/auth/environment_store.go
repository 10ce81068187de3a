package auth

import (
	"os"
	"strings"
	"time"
)

// TokenEnvVar holds the bearer token for EnvironmentStore
const TokenEnvVar = "TWEETHARVEST_BEARER_TOKEN"

// EnvironmentStore implements CredentialStore using an environment variable
type EnvironmentStore struct {
	variable string
}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{variable: TokenEnvVar}
}

// Name identifies the store
func (e *EnvironmentStore) Name() string { return "env:" + e.variable }

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve gets the token from the environment. Any name matches.
func (e *EnvironmentStore) Retrieve(name string) (*Credential, error) {
	token := strings.TrimSpace(os.Getenv(e.variable))
	if token == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = DefaultName
	}
	return &Credential{
		Name:         name,
		Token:        token,
		LastModified: time.Now(),
	}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the variable is set
func (e *EnvironmentStore) Exists(name string) bool {
	return strings.TrimSpace(os.Getenv(e.variable)) != ""
}
