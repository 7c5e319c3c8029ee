package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestEqual(t *testing.T) {
	exp := time.Unix(1700000000, 0)
	base := oauth2.Token{AccessToken: "bocchi", RefreshToken: "ryou", TokenType: "bearer", Expiry: exp}
	cases := []struct {
		name string
		a, b *oauth2.Token
		want bool
	}{
		{"nil", nil, nil, true},
		{"nil-left", nil, &base, false},
		{"nil-right", &base, nil, false},
		{"same", &base, &base, true},
		{"copy", &base, &oauth2.Token{AccessToken: "bocchi", RefreshToken: "ryou", TokenType: "bearer", Expiry: exp.UTC()}, true},
		{"access", &base, &oauth2.Token{AccessToken: "kita", RefreshToken: "ryou", TokenType: "bearer", Expiry: exp}, false},
		{"refresh", &base, &oauth2.Token{AccessToken: "bocchi", RefreshToken: "kita", TokenType: "bearer", Expiry: exp}, false},
		{"expiry", &base, &oauth2.Token{AccessToken: "bocchi", RefreshToken: "ryou", TokenType: "bearer"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Equal(c.a, c.b); got != c.want {
				t.Errorf("wrong result: want %t, got %t", c.want, got)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	src := Static("oauth:bocchi")
	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("couldn't get token: %v", err)
	}
	if tok.AccessToken != "bocchi" {
		t.Errorf("wrong access token: want %q, got %q", "bocchi", tok.AccessToken)
	}
	if _, err := src.Refresh(ctx, tok); !errors.Is(err, ErrStatic) {
		t.Errorf("wrong refresh error: want %v, got %v", ErrStatic, err)
	}
	r, err := src.Refresh(ctx, &oauth2.Token{AccessToken: "ryou"})
	if err != nil {
		t.Errorf("refresh of stale token failed: %v", err)
	}
	if r != tok {
		t.Errorf("refresh of stale token gave a different token")
	}
	if _, err := Static("").Token(ctx); err == nil {
		t.Error("empty static token succeeded")
	}
}
