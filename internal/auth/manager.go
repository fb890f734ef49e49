package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	serviceName        = "icdl"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager stores session tokens per profile and hands out token sources to
// the session backends. It never performs an interactive login.
type Manager struct {
	useKeyring     bool
	storage        StorageBackend
	oauthConfig    *oauth2.Config
	storageWarning string
}

// NewManager creates a new auth manager
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // Force use of encrypted file storage
	ForcePlainFile     bool // Force use of plain file storage (insecure, dev only)
}

// NewManagerWithOptions creates a new auth manager with specific options
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{}

	if opts.ForcePlainFile {
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Tokens are stored in plain text."
	} else if opts.ForceEncryptedFile || !keyringAvailable() {
		storage, err := NewEncryptedFileStorage(configDir)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
		} else {
			mgr.storage = storage
			if !opts.ForceEncryptedFile {
				mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
			}
		}
	} else {
		mgr.storage = NewKeyringStorage(serviceName, filepath.Join(configDir, "profiles.json"))
		mgr.useKeyring = true
	}

	return mgr
}

// keyringAvailable probes the system keyring with a throwaway entry
var keyringAvailable = func() bool {
	testKey := "icdl-probe"
	if err := keyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

// SetOAuthConfig enables refresh of OAuth tokens against Google's endpoint
func (m *Manager) SetOAuthConfig(clientID, clientSecret string, scopes []string) {
	if clientID == "" {
		m.oauthConfig = nil
		return
	}
	m.oauthConfig = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

func invalidProfile(err error) error {
	return utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).WithCause(err).Err()
}

// LoadCredentials loads stored credentials for a profile
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	if err := ValidateProfile(profile); err != nil {
		return nil, invalidProfile(err)
	}
	data, err := m.storage.Load(profile)
	if err != nil {
		return nil, err
	}

	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	creds := &types.Credentials{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Scopes:       stored.Scopes,
		Type:         stored.Type,
	}
	if stored.ExpiryDate != "" {
		creds.ExpiryDate, err = time.Parse(time.RFC3339, stored.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry date: %w", err)
		}
	}
	return creds, nil
}

// SaveCredentials saves credentials for a profile
func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	if err := ValidateProfile(profile); err != nil {
		return invalidProfile(err)
	}
	if creds.AccessToken == "" {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument, "token must not be empty").Err()
	}
	stored := types.StoredCredentials{
		Profile:      profile,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Scopes:       creds.Scopes,
		Type:         creds.Type,
	}
	if !creds.ExpiryDate.IsZero() {
		stored.ExpiryDate = creds.ExpiryDate.UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	return m.storage.Save(profile, data)
}

// DeleteCredentials removes credentials for a profile
func (m *Manager) DeleteCredentials(profile string) error {
	if err := ValidateProfile(profile); err != nil {
		return invalidProfile(err)
	}
	return m.storage.Delete(profile)
}

// ListProfiles lists all stored credential profiles, sorted
func (m *Manager) ListProfiles() ([]string, error) {
	return m.storage.List()
}

// NeedsRefresh reports whether the token expires within the refresh buffer.
// Tokens without an expiry never need a refresh.
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	if creds.ExpiryDate.IsZero() {
		return false
	}
	return time.Now().Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}

// RefreshCredentials refreshes OAuth2 tokens
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if creds.Type != types.AuthTypeOAuth || creds.RefreshToken == "" {
		return nil, fmt.Errorf("refresh only supported for OAuth credentials with a refresh token")
	}
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth client not configured")
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiryDate,
	}

	newToken, err := m.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	refresh := newToken.RefreshToken
	if refresh == "" {
		refresh = creds.RefreshToken
	}
	return &types.Credentials{
		AccessToken:  newToken.AccessToken,
		RefreshToken: refresh,
		ExpiryDate:   newToken.Expiry,
		Scopes:       creds.Scopes,
		Type:         types.AuthTypeOAuth,
	}, nil
}

// GetValidCredentials returns usable credentials, refreshing if possible
func (m *Manager) GetValidCredentials(ctx context.Context, profile string) (*types.Credentials, error) {
	creds, err := m.LoadCredentials(profile)
	if errors.Is(err, ErrNoCredentials) {
		return nil, utils.NewCLIError(utils.ErrCodeAuthRequired,
			"No session token stored. Run 'icdl auth set-token' first.").
			WithContext("profile", profile).Err()
	}
	if err != nil {
		return nil, err
	}

	if !m.NeedsRefresh(creds) {
		return creds, nil
	}

	newCreds, err := m.RefreshCredentials(ctx, creds)
	if err != nil {
		if time.Now().Before(creds.ExpiryDate) {
			return creds, nil
		}
		return nil, utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Session token expired. Run 'icdl auth set-token' to store a new one.").
			WithContext("profile", profile).WithCause(err).Err()
	}
	if err := m.SaveCredentials(profile, newCreds); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	return newCreds, nil
}

// TokenSource returns a token source for creds. OAuth credentials refresh
// themselves when a client is configured.
func (m *Manager) TokenSource(ctx context.Context, creds *types.Credentials) oauth2.TokenSource {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiryDate,
		TokenType:    "Bearer",
	}
	if m.oauthConfig != nil && creds.Type == types.AuthTypeOAuth && creds.RefreshToken != "" {
		return m.oauthConfig.TokenSource(ctx, token)
	}
	return oauth2.StaticTokenSource(token)
}

// GetHTTPClient returns an HTTP client that authorizes requests with creds.
// base may be nil.
func (m *Manager) GetHTTPClient(ctx context.Context, creds *types.Credentials, base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: m.TokenSource(ctx, creds),
			Base:   base,
		},
	}
}

// UseKeyring returns whether the manager is using the system keyring
func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns any warning message about the storage backend
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
