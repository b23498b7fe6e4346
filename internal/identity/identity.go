// Package identity resolves caller credentials against the git service
// that hosts the content repositories.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// User is the resolved identity behind an API token.
type User struct {
	Username string
	Email    string
}

// Resolver maps an opaque user token to a known user.
type Resolver interface {
	// ResolveToken returns the user owning token, or an error if the
	// token is unknown or the identity service is unreachable.
	ResolveToken(ctx context.Context, token string) (*User, error)
}

// GitResolver resolves tokens against a GitHub-compatible API, such as
// a self-hosted Gitea or Gogs instance.
type GitResolver struct {
	baseURL string
	// newClient is swappable for tests.
	newClient func(ctx context.Context, token string) (*github.Client, error)
}

// NewGitResolver returns a resolver for the service at baseURL, e.g.
// "https://git.example.org". An empty baseURL targets github.com.
func NewGitResolver(baseURL string) *GitResolver {
	return &GitResolver{baseURL: baseURL}
}

// ResolveToken calls the authenticated-user endpoint with the token.
func (r *GitResolver) ResolveToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, fmt.Errorf("identity: empty token")
	}

	client, err := r.client(ctx, token)
	if err != nil {
		return nil, err
	}

	u, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("identity: resolve token: %w", err)
	}
	if u.GetLogin() == "" {
		return nil, fmt.Errorf("identity: token resolved to no user")
	}
	return &User{Username: u.GetLogin(), Email: u.GetEmail()}, nil
}

func (r *GitResolver) client(ctx context.Context, token string) (*github.Client, error) {
	if r.newClient != nil {
		return r.newClient(ctx, token)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if r.baseURL == "" {
		return client, nil
	}
	base := strings.TrimSuffix(r.baseURL, "/") + "/api/v1/"
	client, err := client.WithEnterpriseURLs(base, base)
	if err != nil {
		return nil, fmt.Errorf("identity: bad base url %q: %w", r.baseURL, err)
	}
	return client, nil
}

// Static is a fixed token-to-user table, used in tests and local setups.
type Static struct {
	Users map[string]User
}

// ResolveToken looks the token up in the table.
func (s *Static) ResolveToken(_ context.Context, token string) (*User, error) {
	u, ok := s.Users[token]
	if !ok {
		return nil, fmt.Errorf("identity: unknown token")
	}
	return &u, nil
}
