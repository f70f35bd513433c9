// Package services contains the application services of the client:
// session management, the UI-facing item service, the sync engine, and
// export/import.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/quillnotes/quill/internal/client/client"
	"github.com/quillnotes/quill/internal/client/repositories/metadata"
	"github.com/quillnotes/quill/internal/common"
	"github.com/quillnotes/quill/internal/cryptox"
	"github.com/quillnotes/quill/internal/logging"
)

// Credentials is what the sync engine needs for one cycle: a bearer
// token for the transport and the master key for payload checks.
type Credentials struct {
	AuthToken string
	MasterKey []byte
}

// CredentialSource provides per-cycle credentials to the sync engine.
type CredentialSource interface {
	// Credentials returns the current session material or
	// common.ErrSessionExpired when no valid session exists.
	Credentials(ctx context.Context) (*Credentials, error)
}

// AuthService manages the session lifecycle: registration, online and
// offline login, and sign-out. It caches offline-login material
// (identifier, salt, KDF params, verifier) in the metadata repository.
type AuthService interface {
	CredentialSource

	Register(ctx context.Context, identifier string, password []byte) error
	OnlineLogin(ctx context.Context, identifier string, password []byte) error
	OfflineLogin(ctx context.Context, identifier string, password []byte) error
	SignOut(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
	Ping(ctx context.Context) error
	IsLoggedIn() bool
	MasterKey() []byte
	Close(ctx context.Context) error
}

type authService struct {
	api  client.Client
	meta metadata.Repository
	log  logging.Logger

	mu         sync.Mutex
	identifier string
	masterKey  []byte
}

// NewAuthService constructs an AuthService bound to the given API
// client and metadata repository.
func NewAuthService(api client.Client, meta metadata.Repository, log logging.Logger) AuthService {
	return &authService{api: api, meta: meta, log: log}
}

// Register creates an account with freshly generated KDF inputs and
// caches them locally so the user can log in offline later.
func (a *authService) Register(ctx context.Context, identifier string, password []byte) error {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	params := client.AuthParams{Salt: salt, KDF: cryptox.DefaultParams}

	masterKey := cryptox.DeriveMasterKey(password, salt, params.KDF)
	defer cryptox.Wipe(masterKey)
	verifier := cryptox.MakeVerifier(masterKey)

	if err := a.api.Register(ctx, identifier, params, verifier); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := a.saveOfflineData(ctx, identifier, params, verifier); err != nil {
		return fmt.Errorf("offline data saving error: %w", err)
	}
	return nil
}

// OnlineLogin fetches the account's KDF parameters, derives the master
// key, authenticates against the server, and refreshes the offline
// cache.
func (a *authService) OnlineLogin(ctx context.Context, identifier string, password []byte) error {
	params, err := a.api.AuthParams(ctx, identifier)
	if err != nil {
		return fmt.Errorf("get auth params: %w", err)
	}

	masterKey := cryptox.DeriveMasterKey(password, params.Salt, params.KDF)
	verifier := cryptox.MakeVerifier(masterKey)

	if err := a.api.SignIn(ctx, identifier, verifier); err != nil {
		cryptox.Wipe(masterKey)
		return fmt.Errorf("sign in: %w", err)
	}

	if err := a.saveOfflineData(ctx, identifier, *params, verifier); err != nil {
		cryptox.Wipe(masterKey)
		return fmt.Errorf("offline data saving error: %w", err)
	}

	a.setSession(identifier, masterKey)
	return nil
}

// OfflineLogin derives a candidate key from locally cached KDF inputs
// and verifies it against the cached verifier, without any network.
// Returns client.ErrLocalDataNotAvailable when nothing is cached and
// common.ErrUnauthorized on verifier mismatch.
func (a *authService) OfflineLogin(ctx context.Context, identifier string, password []byte) error {
	savedIdentifier, err := a.meta.Get(ctx, metadata.KeyIdentifier)
	if err != nil {
		return err
	}
	if savedIdentifier == nil {
		return client.ErrLocalDataNotAvailable
	}
	if string(savedIdentifier) != identifier {
		return common.ErrUnauthorized
	}

	salt, err := a.meta.Get(ctx, metadata.KeySalt)
	if err != nil {
		return err
	}
	verifier, err := a.meta.Get(ctx, metadata.KeyVerifier)
	if err != nil {
		return err
	}
	rawParams, err := a.meta.Get(ctx, metadata.KeyKDFParams)
	if err != nil {
		return err
	}
	if salt == nil || verifier == nil || rawParams == nil {
		return client.ErrLocalDataNotAvailable
	}

	var kdf cryptox.Params
	if err := json.Unmarshal(rawParams, &kdf); err != nil {
		return fmt.Errorf("decode kdf params: %w", err)
	}

	candidate := cryptox.DeriveMasterKey(password, salt, kdf)
	if !cryptox.VerifyMasterKey(candidate, verifier) {
		cryptox.Wipe(candidate)
		return common.ErrUnauthorized
	}

	a.setSession(identifier, candidate)
	return nil
}

// Credentials returns session material for one sync cycle. Sync needs
// both a master key and a server session; an offline-only login yields
// ErrSessionExpired so the cycle aborts without touching the token.
func (a *authService) Credentials(ctx context.Context) (*Credentials, error) {
	a.mu.Lock()
	key := a.masterKey
	a.mu.Unlock()

	if key == nil {
		return nil, common.ErrSessionExpired
	}

	token := a.api.AccessToken()
	if token == "" {
		return nil, common.ErrSessionExpired
	}
	if expired, err := tokenExpired(token); err == nil && expired {
		// the transport refreshes on 401; this is just early warning
		a.log.Debug(ctx, "access token expired, relying on refresh")
	}

	return &Credentials{AuthToken: token, MasterKey: key}, nil
}

func (a *authService) SignOut(ctx context.Context) error {
	a.mu.Lock()
	cryptox.Wipe(a.masterKey)
	a.masterKey = nil
	a.identifier = ""
	a.mu.Unlock()

	a.api.SignOut()
	return nil
}

// ClearOfflineData wipes the cached offline-login material.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	for _, key := range []string{
		metadata.KeyIdentifier, metadata.KeySalt,
		metadata.KeyVerifier, metadata.KeyKDFParams,
	} {
		if err := a.meta.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *authService) Ping(ctx context.Context) error {
	return a.api.Ping(ctx)
}

func (a *authService) IsLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.masterKey != nil
}

// MasterKey returns the session master key, nil when logged out. The
// caller must not retain or modify it.
func (a *authService) MasterKey() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.masterKey
}

func (a *authService) Close(ctx context.Context) error {
	_ = a.SignOut(ctx)
	return a.api.Close()
}

func (a *authService) setSession(identifier string, masterKey []byte) {
	a.mu.Lock()
	a.identifier = identifier
	a.masterKey = masterKey
	a.mu.Unlock()
}

func (a *authService) saveOfflineData(ctx context.Context, identifier string, params client.AuthParams, verifier []byte) error {
	rawParams, err := json.Marshal(params.KDF)
	if err != nil {
		return err
	}

	for key, value := range map[string][]byte{
		metadata.KeyIdentifier: []byte(identifier),
		metadata.KeySalt:       params.Salt,
		metadata.KeyVerifier:   verifier,
		metadata.KeyKDFParams:  rawParams,
	} {
		if err := a.meta.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// tokenExpired reports whether the JWT's exp claim is in the past. The
// signature is not checked here; the server remains the authority.
func tokenExpired(token string) (bool, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, errors.New("no exp claim")
	}
	return exp.Before(time.Now()), nil
}
