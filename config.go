package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/chimebot/chime/command"
	"github.com/chimebot/chime/notify"
	"github.com/chimebot/chime/welcome"
)

// Load loads the bot configuration from TOML.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	return &cfg, &md, nil
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// SecretFile is the path to a file containing a secret key used to
	// encrypt the stored OAuth2 token.
	SecretFile string `toml:"secret"`
	// HTTP is the configuration of the metrics and API server.
	HTTP HTTPCfg `toml:"http"`
	// TMI is the configuration for connecting to Twitch chat.
	TMI ClientCfg `toml:"tmi"`
	// Members is the configuration of who may use commands.
	Members Members `toml:"members"`
	// Player is the configuration of the sound player.
	Player PlayerCfg `toml:"player"`
	// Welcome is the configuration of new chatter welcomes.
	Welcome WelcomeCfg `toml:"welcome"`
	// Queue is the configuration of song requests.
	Queue QueueCfg `toml:"queue"`
	// Audit is the configuration of the command audit log.
	Audit AuditCfg `toml:"audit"`
	// Commands is the list of chat commands.
	Commands []CommandCfg `toml:"command"`
}

// HTTPCfg is the configuration of the HTTP server.
type HTTPCfg struct {
	// Listen is the address on which to serve. If empty, there is no server.
	Listen string `toml:"listen"`
}

// ClientCfg is the configuration for connecting to Twitch chat.
type ClientCfg struct {
	// CID is the client ID.
	CID string `toml:"cid"`
	// SecretFile is the path to a file containing the client secret.
	SecretFile string `toml:"secret"`
	// TokenFile is the path to a file in which the bot will persist its OAuth2
	// token. It is encrypted with a key derived from the Config.Secret key.
	TokenFile string `toml:"token"`
	// Access is a fixed access token. If it is set, the device code flow and
	// the token file are not used.
	Access string `toml:"access"`
	// Channels is the list of channels to join, each with a leading #.
	Channels []string `toml:"channels"`
	// Rate is the global rate limit for sent messages.
	Rate Rate `toml:"rate"`
}

// Members is the configuration of command permissions.
type Members struct {
	// Permitted is the logins of users allowed to use commands.
	Permitted []string `toml:"permitted"`
	// Seen is the logins of users never to welcome.
	Seen []string `toml:"seen"`
}

// PlayerCfg is the configuration of the sound player.
type PlayerCfg struct {
	// Command is the player command line. The argument {file} is replaced
	// with the sound file; if no argument is, the file is appended.
	Command []string `toml:"command"`
}

// WelcomeCfg is the configuration of new chatter welcomes.
type WelcomeCfg struct {
	// Sounds is the sound file for each welcome variant, in order.
	// Missing or empty entries are silent.
	Sounds []string `toml:"sounds"`
}

// QueueCfg is the configuration of song requests.
type QueueCfg struct {
	// File is the path of the song request queue.
	File string `toml:"file"`
	// Process is a command line to start alongside the bot to consume the
	// queue. It is not waited for.
	Process []string `toml:"process"`
}

// AuditCfg is the configuration of the command audit log.
type AuditCfg struct {
	// DB is the SQLite connection string. If empty, commands aren't recorded.
	DB string `toml:"db"`
}

// CommandCfg is the configuration of a single chat command.
type CommandCfg struct {
	// Name is the command token, e.g. !raid.
	Name string `toml:"name"`
	// Kind is the command behavior, one of notify, songrequest, uptime, or
	// quit.
	Kind string `toml:"kind"`
	// Sounds is the weighted sound files for notify commands.
	Sounds map[string]int `toml:"sounds"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Commands builds the command registry.
func Commands(cmds []CommandCfg, start time.Time, p command.Player, q command.Queue) (*command.Registry, error) {
	r := command.NewRegistry()
	for i, c := range cmds {
		if c.Name == "" || strings.ContainsFunc(c.Name, unicode.IsSpace) {
			return nil, fmt.Errorf("command %d has invalid name %q", i, c.Name)
		}
		var h command.Handler
		switch strings.ToLower(c.Kind) {
		case "notify":
			h = command.Notify(p, notify.NewSounds(c.Sounds))
		case "songrequest", "sr":
			h = command.SongRequest(q)
		case "uptime":
			h = command.Uptime(start)
		case "quit":
			h = command.Quit(start)
		default:
			return nil, fmt.Errorf("command %s has unknown kind %q", c.Name, c.Kind)
		}
		r.With(c.Name, h)
	}
	return r, nil
}

// welcomeSounds arranges the configured welcome sounds by variant.
func welcomeSounds(s []string) ([welcome.Variants]string, error) {
	var r [welcome.Variants]string
	if len(s) > len(r) {
		return r, fmt.Errorf("too many welcome sounds: have %d, max %d", len(s), len(r))
	}
	copy(r[:], s)
	return r, nil
}

// domainkey fills o with a key derived from k for the given domain. Panics if
// a key cannot be expanded.
func domainkey(o, k, domain []byte) []byte {
	kr := hkdf.Expand(sha3.New224, k, domain)
	if _, err := io.ReadFull(kr, o); err != nil {
		panic(err)
	}
	return o
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.SecretFile,
		&cfg.HTTP.Listen,
		&cfg.TMI.CID,
		&cfg.TMI.SecretFile,
		&cfg.TMI.TokenFile,
		&cfg.TMI.Access,
		&cfg.Queue.File,
		&cfg.Audit.DB,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	lists := [][]string{
		cfg.TMI.Channels,
		cfg.Members.Permitted,
		cfg.Members.Seen,
		cfg.Player.Command,
		cfg.Welcome.Sounds,
		cfg.Queue.Process,
	}
	for _, l := range lists {
		for i, s := range l {
			l[i] = os.Expand(s, expand)
		}
	}
	for i := range cfg.Commands {
		c := &cfg.Commands[i]
		if len(c.Sounds) == 0 {
			continue
		}
		m := make(map[string]int, len(c.Sounds))
		for k, v := range c.Sounds {
			m[os.Expand(k, expand)] += v
		}
		c.Sounds = m
	}
}
