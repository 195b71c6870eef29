package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prperemyshlev/interview-auth/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderGitHub   = "github"

	maxUserInfoBytes = 1 << 20
)

// ProviderUser is the identity asserted by an OAuth provider
type ProviderUser struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
}

// Provider adapts one OAuth2 identity provider
type Provider struct {
	Name        string
	Config      oauth2.Config
	UserInfoURL string
	// EmailsURL is consulted when the user-info document carries no email.
	EmailsURL string
	decode    func(body []byte) (*ProviderUser, error)
}

// NewProviders builds adapters for every provider with configured credentials
func NewProviders(cfg config.OAuthConfig) []*Provider {
	var providers []*Provider

	if cfg.Google.Enabled() {
		providers = append(providers, GoogleProvider(cfg.Google, endpoints.Google, "https://openidconnect.googleapis.com/v1/userinfo"))
	}
	if cfg.Facebook.Enabled() {
		providers = append(providers, FacebookProvider(cfg.Facebook, endpoints.Facebook, "https://graph.facebook.com/me?fields=id,name,email"))
	}
	if cfg.GitHub.Enabled() {
		providers = append(providers, GitHubProvider(cfg.GitHub, endpoints.GitHub, "https://api.github.com/user", "https://api.github.com/user/emails"))
	}

	return providers
}

func oauthConfig(p config.OAuthProviderConfig, endpoint oauth2.Endpoint, scopes ...string) oauth2.Config {
	return oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// GoogleProvider creates a Google adapter against the given endpoints
func GoogleProvider(p config.OAuthProviderConfig, endpoint oauth2.Endpoint, userInfoURL string) *Provider {
	return &Provider{
		Name:        ProviderGoogle,
		Config:      oauthConfig(p, endpoint, "openid", "email", "profile"),
		UserInfoURL: userInfoURL,
		decode: func(body []byte) (*ProviderUser, error) {
			var info struct {
				Sub           string `json:"sub"`
				Email         string `json:"email"`
				EmailVerified bool   `json:"email_verified"`
				Name          string `json:"name"`
			}
			if err := json.Unmarshal(body, &info); err != nil {
				return nil, err
			}
			return &ProviderUser{ID: info.Sub, Email: info.Email, EmailVerified: info.EmailVerified, Name: info.Name}, nil
		},
	}
}

// FacebookProvider creates a Facebook adapter against the given endpoints
func FacebookProvider(p config.OAuthProviderConfig, endpoint oauth2.Endpoint, userInfoURL string) *Provider {
	return &Provider{
		Name:        ProviderFacebook,
		Config:      oauthConfig(p, endpoint, "email", "public_profile"),
		UserInfoURL: userInfoURL,
		decode: func(body []byte) (*ProviderUser, error) {
			var info struct {
				ID    string `json:"id"`
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			if err := json.Unmarshal(body, &info); err != nil {
				return nil, err
			}
			// Graph API only returns confirmed addresses.
			return &ProviderUser{ID: info.ID, Email: info.Email, EmailVerified: info.Email != "", Name: info.Name}, nil
		},
	}
}

// GitHubProvider creates a GitHub adapter against the given endpoints
func GitHubProvider(p config.OAuthProviderConfig, endpoint oauth2.Endpoint, userInfoURL, emailsURL string) *Provider {
	return &Provider{
		Name:        ProviderGitHub,
		Config:      oauthConfig(p, endpoint, "read:user", "user:email"),
		UserInfoURL: userInfoURL,
		EmailsURL:   emailsURL,
		decode: func(body []byte) (*ProviderUser, error) {
			var info struct {
				ID    int64  `json:"id"`
				Login string `json:"login"`
				Name  string `json:"name"`
				Email string `json:"email"`
			}
			if err := json.Unmarshal(body, &info); err != nil {
				return nil, err
			}
			name := info.Name
			if name == "" {
				name = info.Login
			}
			// A public profile email is not proof of ownership; the emails endpoint decides.
			return &ProviderUser{ID: strconv.FormatInt(info.ID, 10), Email: info.Email, Name: name}, nil
		},
	}
}

// fetchUser loads the identity behind token from the provider
func (p *Provider) fetchUser(ctx context.Context, token *oauth2.Token) (*ProviderUser, error) {
	client := p.Config.Client(ctx, token)

	body, err := getJSON(ctx, client, p.UserInfoURL)
	if err != nil {
		return nil, err
	}

	user, err := p.decode(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	if p.EmailsURL != "" {
		if err := p.resolvePrimaryEmail(ctx, client, user); err != nil {
			return nil, err
		}
	}

	return user, nil
}

func (p *Provider) resolvePrimaryEmail(ctx context.Context, client *http.Client, user *ProviderUser) error {
	body, err := getJSON(ctx, client, p.EmailsURL)
	if err != nil {
		return err
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return fmt.Errorf("failed to decode emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary {
			user.Email = e.Email
			user.EmailVerified = e.Verified
			return nil
		}
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request to %s returned status %d", req.URL.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
