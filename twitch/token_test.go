package twitch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

func validateServer(t *testing.T, status int, body string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer bocchi" {
			t.Errorf("wrong authorization: want %q, got %q", "Bearer bocchi", got)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	old := validateURL
	validateURL = srv.URL
	t.Cleanup(func() { validateURL = old })
}

func TestValidate(t *testing.T) {
	validateServer(t, 200, `{"client_id":"kessoku","login":"ryou","scopes":["chat:read","chat:edit"],"user_id":"1","expires_in":3600}`)
	v, err := Validate(context.Background(), nil, &oauth2.Token{AccessToken: "bocchi"})
	if err != nil {
		t.Fatalf("couldn't validate: %v", err)
	}
	want := &Validation{
		ClientID:  "kessoku",
		Login:     "ryou",
		Scopes:    []string{"chat:read", "chat:edit"},
		UserID:    "1",
		ExpiresIn: 3600,
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("wrong validation (+got/-want):\n%s", diff)
	}
	if !v.HasScopes("chat:edit", "chat:read") {
		t.Error("validation is missing scopes")
	}
	if v.HasScopes("chat:read", "moderator:manage:announcements") {
		t.Error("validation has extra scopes")
	}
	now := time.Unix(0, 0)
	if got, want := v.Expires(now), now.Add(time.Hour); !got.Equal(want) {
		t.Errorf("wrong expiry: want %v, got %v", want, got)
	}
}

func TestValidateExpired(t *testing.T) {
	validateServer(t, 401, `{"status":401,"message":"invalid access token"}`)
	v, err := Validate(context.Background(), nil, &oauth2.Token{AccessToken: "bocchi"})
	if !errors.Is(err, ErrNeedRefresh) {
		t.Errorf("expired token didn't return ErrNeedRefresh: %v", err)
	}
	if v == nil || v.Message != "invalid access token" {
		t.Errorf("wrong validation: %#v", v)
	}
}

func TestValidateFailure(t *testing.T) {
	validateServer(t, 500, `{"status":500,"message":"oops"}`)
	_, err := Validate(context.Background(), nil, &oauth2.Token{AccessToken: "bocchi"})
	if err == nil {
		t.Fatal("server failure didn't return an error")
	}
	if errors.Is(err, ErrNeedRefresh) {
		t.Errorf("server failure asked for refresh: %v", err)
	}
}
