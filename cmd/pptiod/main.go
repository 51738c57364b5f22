// pptiod is the simulation daemon: it accepts overlap-simulation jobs
// over HTTP, runs both protocol roles in-process, streams session
// progress as SSE, and archives outcomes in BadgerDB.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitanshubhoot/PP-TIO/internal/logging"
	"github.com/mitanshubhoot/PP-TIO/internal/otelinit"
	"github.com/mitanshubhoot/PP-TIO/internal/ratelimit"
	"github.com/mitanshubhoot/PP-TIO/internal/store"
)

func main() {
	service := "pptiod"
	logging.Init(service)

	addr := flag.String("addr", ":8080", "listen address")
	dataDir := flag.String("data-dir", "./pptiod-data", "result archive directory")
	plain := flag.Bool("plain", false, "use the plaintext capability instead of BFV")
	rate := flag.Int64("rate", 10, "sustained simulations per minute")
	burst := flag.Int64("burst", 5, "admission burst capacity")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics := otelinit.InitMetrics(ctx, service)

	archive, err := store.Open(*dataDir)
	if err != nil {
		slog.Error("archive open failed", "dir", *dataDir, "error", err)
		return
	}
	defer archive.Close()

	limiter := ratelimit.New(*burst, float64(*rate)/60.0, time.Minute, *rate)
	srvState, err := newServer(archive, limiter, *plain)
	if err != nil {
		slog.Error("server init failed", "error", err)
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/simulations", srvState.handleSimulations)
	mux.HandleFunc("/v1/simulations/", srvState.handleSimulation)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()
	slog.Info("service started", "addr", *addr, "plain", *plain)
	<-ctx.Done()
	slog.Info("shutdown initiated")
	ctxSd, c2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer c2()
	_ = srv.Shutdown(ctxSd)
	otelinit.Flush(ctxSd, shutdownTrace)
	_ = shutdownMetrics(ctxSd)
	slog.Info("shutdown complete")
}
