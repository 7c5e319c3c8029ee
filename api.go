package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chimebot/chime/audit"
)

func (robo *Robot) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	robo.routes(mux)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// routes adds the bot's API routes to mux.
func (robo *Robot) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", robo.apiStatus)
	mux.HandleFunc("GET /api/audit", robo.apiAudit)
	mux.HandleFunc("GET /api/queue", robo.apiQueue)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

// apiLog creates a logger for an API request and logs its start.
func apiLog(r *http.Request, api string) *slog.Logger {
	log := slog.With(slog.String("api", api), slog.Any("trace", uuid.New()))
	log.InfoContext(r.Context(), "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	return log
}

func writejson(ctx context.Context, log *slog.Logger, w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

func (robo *Robot) apiStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "status")
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	u := struct {
		State    string   `json:"state"`
		Uptime   string   `json:"uptime"`
		Seen     int      `json:"seen"`
		Commands []string `json:"commands"`
		Status   int      `json:"status"`
	}{
		State:    robo.bot.State().String(),
		Uptime:   time.Since(robo.start).Round(time.Second).String(),
		Seen:     robo.bot.Seen(),
		Commands: robo.bot.Commands.Names(),
		Status:   http.StatusOK,
	}
	writejson(ctx, log, w, &u)
}

func (robo *Robot) apiAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "audit")
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	if robo.audit == nil {
		jsonerror(w, http.StatusNotFound, "no audit log")
		return
	}
	n := 20
	if s := r.FormValue("n"); s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			log.WarnContext(ctx, "bad request", slog.String("n", s), slog.Any("err", err))
			jsonerror(w, http.StatusBadRequest, "invalid count")
			return
		}
	}
	l, err := audit.Recent(ctx, robo.audit, n)
	if err != nil {
		log.ErrorContext(ctx, "couldn't read audit log", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := struct {
		Data   []audit.Entry `json:"data"`
		Status int           `json:"status"`
	}{
		Data:   l,
		Status: http.StatusOK,
	}
	if u.Data == nil {
		u.Data = []audit.Entry{}
	}
	writejson(ctx, log, w, &u)
}

func (robo *Robot) apiQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "queue")
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	l, err := robo.queue.Entries()
	if err != nil {
		log.ErrorContext(ctx, "couldn't read queue", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := struct {
		Data   []string `json:"data"`
		Status int      `json:"status"`
	}{
		Data:   l,
		Status: http.StatusOK,
	}
	if u.Data == nil {
		u.Data = []string{}
	}
	writejson(ctx, log, w, &u)
}
