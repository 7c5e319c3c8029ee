package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chimebot/chime/audit"
	"github.com/chimebot/chime/auth"
	"github.com/chimebot/chime/bot"
	"github.com/chimebot/chime/member"
	"github.com/chimebot/chime/metrics"
	"github.com/chimebot/chime/notify"
	"github.com/chimebot/chime/queue"
	"github.com/chimebot/chime/session"
	"github.com/chimebot/chime/twitch"
	"github.com/chimebot/chime/welcome"
)

// Robot is the overall configuration for the bot.
type Robot struct {
	// bot is the command dispatcher.
	bot *bot.Bot
	// start is the time the robot was created, for uptime.
	start time.Time
	// metrics is the robot's metrics.
	metrics *metrics.Metrics
	// queue is the song request queue.
	queue *queue.File
	// audit is the audit log database. It may be nil.
	audit *sqlitex.Pool
	// tmi contains the bot's Twitch chat settings.
	tmi *client
}

// client is the Twitch chat connection configuration.
type client struct {
	// tokens is the source of access tokens.
	tokens auth.TokenSource
	// http is the client for Twitch API requests.
	http *http.Client
	// channels is the list of channels to join.
	channels []string
	// rate is the global rate limit for sent messages.
	rate *rate.Limiter
	// helper is the command line of the queue helper process.
	helper []string
}

// New creates a robot from its configuration.
func New(ctx context.Context, cfg *Config) (*Robot, error) {
	robo := &Robot{
		start:   time.Now(),
		metrics: newMetrics(),
	}
	qf := cfg.Queue.File
	if qf == "" {
		qf = "queue.txt"
	}
	robo.queue = &queue.File{Path: qf, Appended: robo.metrics.QueueAppended}
	player := &notify.Player{Command: cfg.Player.Command, Failures: robo.metrics.SpawnFailures}
	cmds, err := Commands(cfg.Commands, robo.start, player, robo.queue)
	if err != nil {
		return nil, err
	}
	sounds, err := welcomeSounds(cfg.Welcome.Sounds)
	if err != nil {
		return nil, err
	}
	robo.bot = &bot.Bot{
		Commands: cmds,
		Members:  member.New(cfg.Members.Permitted, cfg.Members.Seen),
		Welcome: &welcome.Welcomer{
			Sounds: sounds,
			Player: player,
			Count:  robo.metrics.WelcomeCount,
		},
		Metrics: *robo.metrics,
	}
	if cfg.Audit.DB != "" {
		robo.audit, err = openAudit(ctx, cfg.Audit.DB)
		if err != nil {
			return nil, err
		}
		robo.bot.Audit = &audit.Log{DB: robo.audit}
	}
	slog.InfoContext(ctx, "configured",
		slog.Int("count", cmds.Len()),
		slog.Any("commands", cmds.Names()),
		slog.Int("permitted", robo.bot.Members.PermittedCount()),
		slog.Int("seen", robo.bot.Members.Seen()),
		slog.String("queue", robo.queue.Path),
	)
	return robo, nil
}

// InitTwitch loads the Twitch chat configuration.
func (robo *Robot) InitTwitch(ctx context.Context, cfg *Config) error {
	if len(cfg.TMI.Channels) == 0 {
		return errors.New("no channels to join")
	}
	// Default to the unverified Twitch limit of 20 messages per 30 seconds.
	lim := rate.NewLimiter(rate.Every(30*time.Second/20), 1)
	if cfg.TMI.Rate.Num > 0 {
		lim = rate.NewLimiter(rate.Every(fseconds(cfg.TMI.Rate.Every)), cfg.TMI.Rate.Num)
	}
	robo.tmi = &client{
		http:     &http.Client{Timeout: 30 * time.Second},
		channels: cfg.TMI.Channels,
		rate:     lim,
		helper:   cfg.Queue.Process,
	}
	if cfg.TMI.Access != "" {
		slog.InfoContext(ctx, "using fixed access token")
		robo.tmi.tokens = auth.Static(cfg.TMI.Access)
		return nil
	}
	k, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return fmt.Errorf("couldn't read secret key: %w", err)
	}
	key := domainkey(make([]byte, auth.KeySize), k, []byte("oauth2.twitch"))
	stor, err := auth.NewFileAt(cfg.TMI.TokenFile, [auth.KeySize]byte(key))
	if err != nil {
		return fmt.Errorf("couldn't use token storage: %w", err)
	}
	secret, err := os.ReadFile(cfg.TMI.SecretFile)
	if err != nil {
		return fmt.Errorf("couldn't read client secret: %w", err)
	}
	oc := oauth2.Config{
		ClientID:     cfg.TMI.CID,
		ClientSecret: strings.TrimSpace(string(secret)),
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: "https://id.twitch.tv/oauth2/device",
			TokenURL:      "https://id.twitch.tv/oauth2/token",
		},
		Scopes: []string{"chat:read", "chat:edit"},
	}
	robo.tmi.tokens = auth.DeviceCodeFlow(oc, stor, robo.tmi.http, deviceCodePrompt)
	return nil
}

func deviceCodePrompt(userCode, verURI, verURIComplete string) {
	if verURIComplete != "" {
		fmt.Printf("\nOpen %s to authorize the bot.\n\n", verURIComplete)
		return
	}
	fmt.Printf("\nOpen %s and enter the code %s to authorize the bot.\n\n", verURI, userCode)
}

// identify validates the access token and returns the bot's login along with
// the token to use for the connection.
func (robo *Robot) identify(ctx context.Context) (string, *oauth2.Token, error) {
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("couldn't obtain Twitch access token: %w", err)
	}
	for range 5 {
		val, err := twitch.Validate(ctx, robo.tmi.http, tok)
		switch {
		case err == nil: // do nothing
		case errors.Is(err, twitch.ErrNeedRefresh):
			slog.WarnContext(ctx, "Twitch token needs refresh", slog.Any("err", err))
			tok, err = robo.tmi.tokens.Refresh(ctx, tok)
			if err != nil {
				return "", nil, fmt.Errorf("couldn't refresh Twitch token: %w", err)
			}
			continue
		default:
			return "", nil, fmt.Errorf("couldn't validate Twitch token: %w", err)
		}
		slog.InfoContext(ctx, "Twitch identity",
			slog.String("login", val.Login),
			slog.String("user", val.UserID),
			slog.Time("expires", val.Expires(time.Now())),
		)
		if !val.HasScopes("chat:read", "chat:edit") {
			slog.WarnContext(ctx, "Twitch token is missing chat scopes", slog.Any("scopes", val.Scopes))
		}
		return val.Login, tok, nil
	}
	return "", nil, errors.New("gave up on validation attempts")
}

// Run connects to chat and dispatches commands until the session ends or ctx
// is canceled. If listen is not empty, it also serves metrics and the API.
func (robo *Robot) Run(ctx context.Context, listen string) error {
	nick, tok, err := robo.identify(ctx)
	if err != nil {
		return err
	}
	cfg := tmi.ConnectConfig{
		Dial:         new(tls.Dialer).DialContext,
		RetryWait:    tmi.RetryList(true, 0, time.Second, time.Minute, 5*time.Minute),
		Nick:         strings.ToLower(nick),
		Pass:         "oauth:" + tok.AccessToken,
		Capabilities: []string{"twitch.tv/commands", "twitch.tv/tags"},
		Timeout:      300 * time.Second,
	}
	send := make(chan *tmi.Message, 1)
	recv := make(chan *tmi.Message, 8) // 8 is enough for on-connect msgs
	sess := session.NewTMI(send, recv, robo.tmi.rate)

	if len(robo.tmi.helper) != 0 {
		if err := notify.Spawn(ctx, robo.tmi.helper); err != nil {
			// The helper is a convenience. Keep going without it.
			slog.ErrorContext(ctx, "couldn't start queue helper", slog.Any("err", err))
			metrics.Observe(robo.metrics.SpawnFailures, 1)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	// conn ends the connection and the API server once dispatch stops.
	conn, stop := context.WithCancel(ctx)
	defer stop()
	tlog := slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
	group.Go(func() error {
		tmi.Connect(conn, cfg, tmi.Log(tlog, false), send, recv)
		return nil
	})
	group.Go(func() error {
		defer stop()
		return robo.bot.Run(ctx, sess, robo.tmi.channels)
	})
	if listen != "" {
		group.Go(func() error {
			return robo.api(conn, listen, new(http.ServeMux), robo.metrics.Collectors())
		})
	}
	err = group.Wait()
	if robo.audit != nil {
		if cerr := robo.audit.Close(); cerr != nil {
			slog.ErrorContext(ctx, "couldn't close audit log", slog.Any("err", cerr))
		}
	}
	slog.InfoContext(ctx, "stopped", slog.Duration("uptime", time.Since(robo.start)))
	return err
}

func openAudit(ctx context.Context, dsn string) (*sqlitex.Pool, error) {
	slog.DebugContext(ctx, "audit db", slog.String("path", dsn))
	db, err := sqlitex.NewPool(dsn, sqlitex.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("couldn't open audit db: %w", err)
	}
	if err := audit.Init(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
