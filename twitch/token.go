// Package twitch implements the parts of the Twitch API the bot needs.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"
)

// validateURL is the token validation endpoint.
var validateURL = "https://id.twitch.tv/oauth2/validate"

// Validate checks the status of an access token and identifies its owner.
// If client is nil, [http.DefaultClient] is used.
// If the API response indicates that the access token is invalid, the returned
// error wraps [ErrNeedRefresh].
// The returned Validation may be non-nil even if the error is also non-nil.
func Validate(ctx context.Context, client *http.Client, tok *oauth2.Token) (*Validation, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't make validate request: %w", err)
	}
	tok.SetAuthHeader(req)
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't validate access token: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("couldn't read token validation response: %w", err)
	}
	var s Validation
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("couldn't unmarshal token validation response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK: // do nothing
	case http.StatusUnauthorized:
		err = fmt.Errorf("token validation failed: %s (%w)", s.Message, ErrNeedRefresh)
	default:
		err = fmt.Errorf("token validation failed: %s (%s)", s.Message, resp.Status)
	}
	return &s, err
}

// Validation describes an access token's validation status.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
	ExpiresIn int      `json:"expires_in"`

	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Expires returns the time at which the token expires, relative to now.
// A zero result means the token does not expire.
func (v *Validation) Expires(now time.Time) time.Time {
	if v.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(v.ExpiresIn) * time.Second)
}

// HasScopes returns whether the token carries all the given scopes.
func (v *Validation) HasScopes(scopes ...string) bool {
	for _, s := range scopes {
		if !slices.Contains(v.Scopes, s) {
			return false
		}
	}
	return true
}

// ErrNeedRefresh is an error indicating that the access token needs to be refreshed.
// It must be checked using [errors.Is].
var ErrNeedRefresh = errors.New("need refresh")
