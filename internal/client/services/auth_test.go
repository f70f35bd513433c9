package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/quillnotes/quill/internal/client/client"
	"github.com/quillnotes/quill/internal/client/repositories/metadata"
	"github.com/quillnotes/quill/internal/client/store"
	"github.com/quillnotes/quill/internal/common"
	"github.com/quillnotes/quill/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthAPI replays the registration handshake in memory.
type fakeAuthAPI struct {
	client.Client

	params    map[string]client.AuthParams
	verifiers map[string][]byte
	token     string
	signedOut bool
}

func newFakeAuthAPI() *fakeAuthAPI {
	return &fakeAuthAPI{
		params:    map[string]client.AuthParams{},
		verifiers: map[string][]byte{},
	}
}

func (f *fakeAuthAPI) AuthParams(_ context.Context, identifier string) (*client.AuthParams, error) {
	p, ok := f.params[identifier]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &p, nil
}

func (f *fakeAuthAPI) Register(_ context.Context, identifier string, params client.AuthParams, verifier []byte) error {
	f.params[identifier] = params
	f.verifiers[identifier] = verifier
	return nil
}

func (f *fakeAuthAPI) SignIn(_ context.Context, identifier string, verifier []byte) error {
	want, ok := f.verifiers[identifier]
	if !ok || !bytes.Equal(want, verifier) {
		return common.ErrUnauthorized
	}
	f.token = "access-token"
	return nil
}

func (f *fakeAuthAPI) SignOut()            { f.signedOut = true; f.token = "" }
func (f *fakeAuthAPI) AccessToken() string { return f.token }

func newAuthService(t *testing.T) (AuthService, *fakeAuthAPI) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	api := newFakeAuthAPI()
	return NewAuthService(api, st.Metadata(), testLogger()), api
}

func TestAuth_RegisterThenOfflineLogin(t *testing.T) {
	svc, api := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "user@example.com", []byte("passphrase")))
	require.Contains(t, api.verifiers, "user@example.com")

	// registration caches everything an offline login needs
	require.NoError(t, svc.OfflineLogin(ctx, "user@example.com", []byte("passphrase")))
	assert.True(t, svc.IsLoggedIn())
	assert.Len(t, svc.MasterKey(), cryptox.KeySize)
}

func TestAuth_OnlineLogin(t *testing.T) {
	svc, api := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "user@example.com", []byte("passphrase")))
	require.NoError(t, svc.OnlineLogin(ctx, "user@example.com", []byte("passphrase")))

	assert.True(t, svc.IsLoggedIn())
	assert.Equal(t, "access-token", api.AccessToken())

	creds, err := svc.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-token", creds.AuthToken)
	assert.Len(t, creds.MasterKey, cryptox.KeySize)
}

func TestAuth_OnlineLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "user@example.com", []byte("passphrase")))

	err := svc.OnlineLogin(ctx, "user@example.com", []byte("wrong"))
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.False(t, svc.IsLoggedIn())
}

func TestAuth_OfflineLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "user@example.com", []byte("passphrase")))

	err := svc.OfflineLogin(ctx, "user@example.com", []byte("wrong"))
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.False(t, svc.IsLoggedIn())
}

func TestAuth_OfflineLoginWithoutCache(t *testing.T) {
	svc, _ := newAuthService(t)

	err := svc.OfflineLogin(context.Background(), "user@example.com", []byte("passphrase"))
	assert.True(t, errors.Is(err, client.ErrLocalDataNotAvailable))
}

func TestAuth_CredentialsWithoutSession(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Credentials(context.Background())
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestAuth_OfflineOnlySessionHasNoCredentials(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "user@example.com", []byte("passphrase")))
	require.NoError(t, svc.OfflineLogin(ctx, "user@example.com", []byte("passphrase")))

	// logged in locally, but no server session means no sync
	_, err := svc.Credentials(ctx)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestAuth_SignOutWipesKey(t *testing.T) {
	svc, api := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "user@example.com", []byte("passphrase")))
	require.NoError(t, svc.OnlineLogin(ctx, "user@example.com", []byte("passphrase")))

	require.NoError(t, svc.SignOut(ctx))
	assert.False(t, svc.IsLoggedIn())
	assert.Nil(t, svc.MasterKey())
	assert.True(t, api.signedOut)
}

func TestAuth_ClearOfflineData(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	api := newFakeAuthAPI()
	svc := NewAuthService(api, st.Metadata(), testLogger())
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "user@example.com", []byte("passphrase")))
	require.NoError(t, svc.ClearOfflineData(ctx))

	v, err := st.Metadata().Get(ctx, metadata.KeyIdentifier)
	require.NoError(t, err)
	assert.Nil(t, v)

	err = svc.OfflineLogin(ctx, "user@example.com", []byte("passphrase"))
	assert.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
}
