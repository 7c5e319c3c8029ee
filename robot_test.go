package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/chimebot/chime/bot"
)

func TestNew(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Members: Members{
			Permitted: []string{"kita"},
			Seen:      []string{"kita", "ryo"},
		},
		Welcome: WelcomeCfg{Sounds: []string{"a.ogg", "", "c.ogg"}},
		Queue:   QueueCfg{File: filepath.Join(t.TempDir(), "q")},
		Commands: []CommandCfg{
			{Name: "!uptime", Kind: "uptime"},
			{Name: "!raid", Kind: "notify", Sounds: map[string]int{"raid.ogg": 1}},
		},
	}
	robo, err := New(ctx, &cfg)
	if err != nil {
		t.Fatalf("couldn't create robot: %v", err)
	}
	if got := robo.bot.Commands.Len(); got != 2 {
		t.Errorf("wrong number of commands: want 2, got %d", got)
	}
	if got := robo.bot.Members.Seen(); got != 2 {
		t.Errorf("wrong number of seen chatters: want 2, got %d", got)
	}
	if robo.bot.Audit != nil {
		t.Errorf("audit log without audit config")
	}
	if got := robo.bot.State(); got != bot.Connecting {
		t.Errorf("wrong initial state: %v", got)
	}

	cfg.Queue.File = ""
	robo, err = New(ctx, &cfg)
	if err != nil {
		t.Fatalf("couldn't create robot without queue file: %v", err)
	}
	if robo.queue.Path != "queue.txt" {
		t.Errorf("wrong default queue file: %q", robo.queue.Path)
	}

	cfg.Welcome.Sounds = make([]string, 6)
	if _, err := New(ctx, &cfg); err == nil {
		t.Error("too many welcome sounds succeeded")
	}
}

func TestInitTwitchStatic(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		TMI: ClientCfg{
			Access:   "oauth:bocchi",
			Channels: []string{"#kessoku"},
		},
	}
	robo, err := New(ctx, &cfg)
	if err != nil {
		t.Fatalf("couldn't create robot: %v", err)
	}
	if err := robo.InitTwitch(ctx, &cfg); err != nil {
		t.Fatalf("couldn't init twitch: %v", err)
	}
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		t.Fatalf("couldn't get token: %v", err)
	}
	if tok.AccessToken != "bocchi" {
		t.Errorf("wrong access token: want %q, got %q", "bocchi", tok.AccessToken)
	}
	if robo.tmi.rate.Burst() != 1 {
		t.Errorf("wrong default burst: %d", robo.tmi.rate.Burst())
	}

	cfg.TMI.Channels = nil
	if err := robo.InitTwitch(ctx, &cfg); err == nil {
		t.Error("init without channels succeeded")
	}
}

func TestDomainKey(t *testing.T) {
	k := []byte("kessoku band")
	a := domainkey(make([]byte, 32), k, []byte("oauth2.twitch"))
	b := domainkey(make([]byte, 32), k, []byte("oauth2.twitch"))
	c := domainkey(make([]byte, 32), k, []byte("other"))
	if !bytes.Equal(a, b) {
		t.Errorf("same domain gave different keys:\n%x\n%x", a, b)
	}
	if bytes.Equal(a, c) {
		t.Errorf("different domains gave the same key %x", a)
	}
}
