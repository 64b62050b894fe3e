package crm

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/straye-as/order-sync/internal/config"
)

const (
	tokenPath = "/services/oauth2/token"

	// jwtAssertionLifetime is the lifetime of the signed assertion; Salesforce accepts at most a few minutes
	jwtAssertionLifetime = 3 * time.Minute

	grantTypePassword  = "password"
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// Session holds an authenticated CRM session
type Session struct {
	AccessToken string
	InstanceURL string
	IssuedAt    time.Time
}

// Authenticator obtains a new session from the CRM login endpoint
type Authenticator interface {
	Authenticate(ctx context.Context, httpClient *http.Client) (*Session, error)
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	InstanceURL      string `json:"instance_url"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// PasswordAuth implements the OAuth 2.0 username-password flow.
// The security token is appended to the password as Salesforce requires.
type PasswordAuth struct {
	LoginURL      string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	SecurityToken string
}

// Authenticate requests an access token with the password grant
func (a *PasswordAuth) Authenticate(ctx context.Context, httpClient *http.Client) (*Session, error) {
	form := url.Values{}
	form.Set("grant_type", grantTypePassword)
	form.Set("client_id", a.ClientID)
	form.Set("client_secret", a.ClientSecret)
	form.Set("username", a.Username)
	form.Set("password", a.Password+a.SecurityToken)
	return requestToken(ctx, httpClient, a.LoginURL, form)
}

// JWTBearerAuth implements the OAuth 2.0 JWT bearer flow with an RS256-signed assertion
type JWTBearerAuth struct {
	LoginURL string
	ClientID string
	Username string
	Key      *rsa.PrivateKey
	Now      func() time.Time
}

// Authenticate signs an assertion and exchanges it for an access token
func (a *JWTBearerAuth) Authenticate(ctx context.Context, httpClient *http.Client) (*Session, error) {
	assertion, err := a.SignAssertion()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", grantTypeJWTBearer)
	form.Set("assertion", assertion)
	return requestToken(ctx, httpClient, a.LoginURL, form)
}

// SignAssertion builds the signed JWT presented to the token endpoint
func (a *JWTBearerAuth) SignAssertion() (string, error) {
	if a.Key == nil {
		return "", fmt.Errorf("jwt bearer auth requires a private key")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	claims := jwt.RegisteredClaims{
		Issuer:    a.ClientID,
		Subject:   a.Username,
		Audience:  jwt.ClaimStrings{a.LoginURL},
		ExpiresAt: jwt.NewNumericDate(now().Add(jwtAssertionLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign jwt assertion: %w", err)
	}
	return signed, nil
}

// NewAuthenticator builds the authenticator selected by the configured flow
func NewAuthenticator(cfg *config.CRMConfig) (Authenticator, error) {
	switch strings.ToLower(cfg.AuthFlow) {
	case "", config.CRMAuthFlowPassword:
		return &PasswordAuth{
			LoginURL:      cfg.LoginURL(),
			ClientID:      cfg.ClientID,
			ClientSecret:  cfg.ClientSecret,
			Username:      cfg.Username,
			Password:      cfg.Password,
			SecurityToken: cfg.SecurityToken,
		}, nil
	case config.CRMAuthFlowJWT:
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse crm private key: %w", err)
		}
		return &JWTBearerAuth{
			LoginURL: cfg.LoginURL(),
			ClientID: cfg.ClientID,
			Username: cfg.Username,
			Key:      key,
		}, nil
	default:
		return nil, fmt.Errorf("unknown crm auth flow: %s", cfg.AuthFlow)
	}
}

func requestToken(ctx context.Context, httpClient *http.Client, loginURL string, form url.Values) (*Session, error) {
	endpoint := strings.TrimRight(loginURL, "/") + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	var parsed tokenResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return nil, &RejectionError{
				StatusCode: resp.StatusCode,
				Details:    []ErrorDetail{{ErrorCode: parsed.Error, Message: parsed.ErrorDescription}},
				Body:       truncate(string(body), 500),
			}
		}
		return nil, classifyResponse(resp.StatusCode, body)
	}

	if parsed.AccessToken == "" || parsed.InstanceURL == "" {
		return nil, fmt.Errorf("token response missing access_token or instance_url")
	}

	return &Session{
		AccessToken: parsed.AccessToken,
		InstanceURL: strings.TrimRight(parsed.InstanceURL, "/"),
		IssuedAt:    time.Now().UTC(),
	}, nil
}
