package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/chimebot/chime/audit"
	"github.com/chimebot/chime/metrics"
	"github.com/chimebot/chime/queue"
)

var app = cli.Command{
	Name:  "chime",
	Usage: "Stream chat bot for notifications and song requests",

	Flags: []cli.Flag{
		&flagConfig,
		&flagEnv,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:  "audit",
			Usage: "Print recently dispatched commands",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "n",
					Usage: "Number of commands to print",
					Value: 20,
				},
			},
			Action: cliAudit,
		},
		{
			Name:   "queue",
			Usage:  "Print the song request queue",
			Action: cliQueue,
		},
	},
	Action: cliRun,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig loads the environment file, if any, then the config file.
func loadConfig(ctx context.Context, cmd *cli.Command) (*Config, error) {
	if env := cmd.String("env"); env != "" {
		if err := godotenv.Load(env); err != nil {
			return nil, fmt.Errorf("couldn't load environment file: %w", err)
		}
	}
	r, err := os.Open(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	cfg, _, err := Load(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("couldn't load config: %w", err)
	}
	return cfg, nil
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	robo, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := robo.InitTwitch(ctx, cfg); err != nil {
		return err
	}
	err = robo.Run(ctx, cfg.HTTP.Listen)
	if errors.Is(err, context.Canceled) {
		// Interrupted; this is a normal shutdown.
		err = nil
	}
	return err
}

func cliAudit(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	if cfg.Audit.DB == "" {
		return errors.New("no audit log configured")
	}
	db, err := openAudit(ctx, cfg.Audit.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	l, err := audit.Recent(ctx, db, int(cmd.Int("n")))
	if err != nil {
		return err
	}
	for _, e := range l {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", e.Time.Format(time.RFC3339), e.Channel, e.Sender, e.Command, strings.Join(e.Args, " "))
	}
	return nil
}

func cliQueue(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	q := queue.File{Path: cfg.Queue.File}
	if q.Path == "" {
		q.Path = "queue.txt"
	}
	l, err := q.Entries()
	if err != nil {
		return err
	}
	for i, e := range l {
		fmt.Printf("%d\t%s\n", i+1, e)
	}
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagEnv = cli.StringFlag{
		Name:       "env",
		Usage:      "Environment file to load before expanding the config",
		Persistent: true,
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}

// metrics configuration
func newMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		MessagesCount: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "chime",
					Subsystem: "tmi",
					Name:      "messages",
					Help:      "Number of chat messages received.",
				},
			),
		),
		CommandsCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "chime",
					Subsystem: "commands",
					Name:      "dispatched",
					Help:      "Number of commands dispatched by command name.",
				},
				[]string{"command"},
			),
		),
		WelcomeCount: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "chime",
					Subsystem: "welcome",
					Name:      "welcomed",
					Help:      "Number of new chatters welcomed by variant.",
				},
				[]string{"variant"},
			),
		),
		SendFailures: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "chime",
					Subsystem: "tmi",
					Name:      "send_failures",
					Help:      "Number of chat messages that could not be sent.",
				},
			),
		),
		SpawnFailures: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "chime",
					Subsystem: "notify",
					Name:      "spawn_failures",
					Help:      "Number of external programs that could not be started.",
				},
			),
		),
		QueueAppended: metrics.NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "chime",
					Subsystem: "queue",
					Name:      "appended",
					Help:      "Number of song requests added to the queue.",
				},
			),
		),
		CommandLatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
					Namespace: "chime",
					Subsystem: "commands",
					Name:      "latency",
					Help:      "How long commands take to run in seconds.",
				},
				[]string{"command"},
			),
		),
	}
}
