// internal/common/auth/identity.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "property-approvals/internal/common/errors"
)

// Portal roles recognized by the workflow engine.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleLandlord = "landlord"
	RoleTenant   = "tenant"
)

// Principal is the identity of the current caller as reported by the
// identity collaborator.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsReviewer reports whether the principal may resolve approval requests.
func (p Principal) IsReviewer() bool {
	return p.Role == RoleAdmin || p.Role == RoleManager
}

// IsAdmin reports whether the principal has admin-level authority.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Identity supplies (principal_id, role) for a caller. The engine consults
// it before allowing resolve/cancel; it never stores identities itself.
type Identity interface {
	Lookup(ctx context.Context, principalID string) (*Principal, error)
}

// KeycloakIdentity resolves principals against a Keycloak realm using the
// admin REST API with the client-credentials flow. Lookup is called from
// concurrent HTTP handlers, so the cached token is guarded by mu.
type KeycloakIdentity struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// tokenResponse holds the response from Keycloak's token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// NewKeycloakIdentity creates a new instance of KeycloakIdentity.
func NewKeycloakIdentity(baseURL, realm, clientID, clientSecret string) *KeycloakIdentity {
	return &KeycloakIdentity{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// getAccessToken returns the cached access token, fetching a fresh one via
// the client credentials flow when the cache is empty or expired. The lock
// covers the whole check-and-refresh so concurrent callers serialize on one
// token fetch instead of racing the cache fields.
func (k *KeycloakIdentity) getAccessToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tokenExpiry.After(time.Now()) && k.accessToken != "" {
		return k.accessToken, nil
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request returned %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	k.accessToken = tr.AccessToken
	// Refresh a little early to avoid using a token at the edge of expiry.
	k.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn-30) * time.Second)
	return k.accessToken, nil
}

type keycloakRole struct {
	Name string `json:"name"`
}

// Lookup fetches the realm role mappings for the principal and maps them
// onto the portal role set. The highest-authority role wins.
func (k *KeycloakIdentity) Lookup(ctx context.Context, principalID string) (*Principal, error) {
	token, err := k.getAccessToken(ctx)
	if err != nil {
		return nil, apperrors.NewIdentityLookupFailedError(err)
	}

	rolesURL := fmt.Sprintf("%s/admin/realms/%s/users/%s/role-mappings/realm",
		k.baseURL, k.realm, url.PathEscape(principalID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rolesURL, nil)
	if err != nil {
		return nil, apperrors.NewIdentityLookupFailedError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewIdentityLookupFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("principal", principalID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.NewIdentityLookupFailedError(
			fmt.Errorf("role mapping request returned %d: %s", resp.StatusCode, string(body)))
	}

	var roles []keycloakRole
	if err := json.NewDecoder(resp.Body).Decode(&roles); err != nil {
		return nil, apperrors.NewIdentityLookupFailedError(err)
	}

	return &Principal{ID: principalID, Role: pickPortalRole(roles)}, nil
}

// pickPortalRole maps Keycloak realm roles to the portal role with the
// widest authority; callers without a recognized role default to tenant.
func pickPortalRole(roles []keycloakRole) string {
	ranked := map[string]int{
		RoleAdmin:    3,
		RoleManager:  2,
		RoleLandlord: 1,
		RoleTenant:   0,
	}
	best := RoleTenant
	for _, r := range roles {
		name := strings.ToLower(r.Name)
		if rank, ok := ranked[name]; ok && rank > ranked[best] {
			best = name
		}
	}
	return best
}
