package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	errs "tweetharvest/pkg/errors"
)

func writeToken(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestTokenFileStoreReadsFirstLine(t *testing.T) {
	store := NewTokenFileStore(writeToken(t, "  AAAA-token  \nsecond line\n"), true)

	cred, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "AAAA-token", cred.Token)
	assert.Equal(t, DefaultName, cred.Name)
	assert.True(t, store.Exists(DefaultName))
	assert.ErrorIs(t, store.Store(cred), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete(DefaultName), ErrStoreUnavailable)
}

func TestTokenFileStoreMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.txt")

	_, err := NewTokenFileStore(missing, false).Retrieve(DefaultName)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	_, err = NewTokenFileStore(missing, true).Retrieve(DefaultName)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))
}

func TestTokenFileStoreEmpty(t *testing.T) {
	path := writeToken(t, "\n")

	_, err := NewTokenFileStore(path, false).Retrieve(DefaultName)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	_, err = NewTokenFileStore(path, true).Retrieve(DefaultName)
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(TokenEnvVar, "")
	_, err := store.Retrieve(DefaultName)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.False(t, store.Exists(DefaultName))

	t.Setenv(TokenEnvVar, " env-token ")
	cred, err := store.Retrieve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cred.Token)
	assert.True(t, store.Exists(DefaultName))
	assert.ErrorIs(t, store.Store(cred), ErrStoreUnavailable)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)

	_, err = store.Retrieve(DefaultName)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Credential{Name: DefaultName, Token: "secret-token-value"}))
	require.NoError(t, store.Store(&Credential{Name: "backup", Token: "other-token-value"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "secret-token-value")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// a second handle with the same passphrase reads the same file
	reopened, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)
	cred, err := reopened.Retrieve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "secret-token-value", cred.Token)

	wrong, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = wrong.Retrieve(DefaultName)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCredentialsNotFound))

	require.NoError(t, store.Delete(DefaultName))
	assert.False(t, store.Exists(DefaultName))
	assert.True(t, store.Exists("backup"))

	require.NoError(t, store.Delete("backup"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, store.Delete("backup"), ErrCredentialsNotFound)
}

func TestEncryptedFileStorePassphraseFile(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Name: DefaultName, Token: "generated-pass-token"}))

	_, err = os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)

	again, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	cred, err := again.Retrieve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "generated-pass-token", cred.Token)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	_, err = store.Retrieve(DefaultName)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Credential{Name: DefaultName, Token: "keyring-token"}))
	cred, err := store.Retrieve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "keyring-token", cred.Token)
	assert.True(t, store.Exists(DefaultName))

	require.NoError(t, store.Delete(DefaultName))
	assert.ErrorIs(t, store.Delete(DefaultName), ErrCredentialsNotFound)
}

func TestManagerResolveOrder(t *testing.T) {
	first := NewMockStore()
	second := NewMockStore()
	require.NoError(t, second.Store(&Credential{Name: DefaultName, Token: "from-second"}))
	manager := NewManagerWithStores(first, second)

	cred, err := manager.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "from-second", cred.Token)
	assert.Equal(t, "mock", cred.Source)

	require.NoError(t, first.Store(&Credential{Name: DefaultName, Token: "from-first"}))
	cred, err = manager.Resolve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "from-first", cred.Token)
}

func TestManagerResolveSkipsFailingStore(t *testing.T) {
	broken := NewMockStore()
	broken.RetrieveError = errors.New("disk on fire")
	good := NewMockStore()
	require.NoError(t, good.Store(&Credential{Name: DefaultName, Token: "ok"}))

	cred, err := NewManagerWithStores(broken, good).Resolve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "ok", cred.Token)
}

func TestManagerRequiredTokenFileIsFatal(t *testing.T) {
	fallback := NewMockStore()
	require.NoError(t, fallback.Store(&Credential{Name: DefaultName, Token: "fallback"}))
	missing := filepath.Join(t.TempDir(), "missing.txt")

	manager := NewManagerWithStores(NewTokenFileStore(missing, true), fallback)
	_, err := manager.Resolve(DefaultName)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeConfig, errs.TypeOf(err))

	manager = NewManagerWithStores(NewTokenFileStore(missing, false), fallback)
	cred, err := manager.Resolve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "fallback", cred.Token)
}

func TestManagerResolveNotFound(t *testing.T) {
	manager, _ := NewMockManager()
	_, err := manager.Resolve(DefaultName)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Contains(t, err.Error(), "mock")
}

func TestManagerStoreUsesFirstWritableStore(t *testing.T) {
	t.Setenv(TokenEnvVar, "")
	writable := NewMockStore()
	manager := NewManagerWithStores(NewEnvironmentStore(), writable)

	cred := &Credential{Token: "  fresh-token \n"}
	require.NoError(t, manager.Store(cred))
	assert.Equal(t, DefaultName, cred.Name)
	assert.Equal(t, "mock", cred.Source)
	assert.False(t, cred.LastModified.IsZero())

	stored, err := writable.Retrieve(DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", stored.Token)

	assert.ErrorIs(t, manager.Store(&Credential{Token: "  "}), ErrInvalidCredentials)
}

func TestManagerStoreNoWritableStore(t *testing.T) {
	manager := NewManagerWithStores(NewEnvironmentStore())
	err := manager.Store(&Credential{Token: "x"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestManagerDelete(t *testing.T) {
	manager, store := NewMockManager()
	require.NoError(t, manager.Store(&Credential{Token: "t"}))
	assert.Equal(t, 1, store.Count())

	require.NoError(t, manager.Delete(""))
	assert.Equal(t, 0, store.Count())
	assert.ErrorIs(t, manager.Delete(DefaultName), ErrCredentialsNotFound)

	store.DeleteError = errors.New("locked")
	assert.ErrorContains(t, manager.Delete(DefaultName), "locked")
}

func TestNewManagerChains(t *testing.T) {
	keyring.MockInit()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(PassphraseEnvVar, "test-passphrase")

	path := writeToken(t, "file-token\n")
	manager, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:" + path}, manager.Stores())

	manager, err = NewManager("")
	require.NoError(t, err)
	stores := manager.Stores()
	require.Len(t, stores, 4)
	assert.Equal(t, "file:"+DefaultTokenFile, stores[0])
	assert.Equal(t, "env:"+TokenEnvVar, stores[1])
	assert.Equal(t, "keyring", stores[2])
	assert.Contains(t, stores[3], "encrypted:")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "********", MaskToken("short"))
	assert.Equal(t, "AAAA...wxyz", MaskToken("AAAAmiddlepartwxyz"))

	cred := &Credential{Name: DefaultName, Token: "AAAAmiddlepartwxyz"}
	masked := SanitizeCredential(cred)
	assert.Equal(t, "AAAA...wxyz", masked.Token)
	assert.Equal(t, "AAAAmiddlepartwxyz", cred.Token)
	assert.Nil(t, SanitizeCredential(nil))
}

func TestShowTokenGuide(t *testing.T) {
	var b strings.Builder
	ShowTokenGuide(&b)
	assert.Contains(t, b.String(), TokenEnvVar)
	assert.Contains(t, b.String(), DefaultTokenFile)
}
