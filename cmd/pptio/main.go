// pptio is the operator CLI: key generation, local simulations with
// synthetic or file-backed indicator sets, and the two NATS roles for a
// real two-process exchange.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/mitanshubhoot/PP-TIO/dataset"
	"github.com/mitanshubhoot/PP-TIO/he"
	"github.com/mitanshubhoot/PP-TIO/internal/logging"
	"github.com/mitanshubhoot/PP-TIO/internal/otelinit"
	"github.com/mitanshubhoot/PP-TIO/ioc"
	"github.com/mitanshubhoot/PP-TIO/keystore"
	"github.com/mitanshubhoot/PP-TIO/protocol"
	"github.com/mitanshubhoot/PP-TIO/transport"
)

func main() {
	logging.Init("pptio")
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "simulate":
		err = runSimulate(ctx, os.Args[2:])
	case "request":
		err = runRequest(ctx, os.Args[2:])
	case "respond":
		err = runRespond(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: pptio <command> [flags]

commands:
  keygen    generate and store a BFV key pair
  simulate  run both protocol roles in-process over synthetic or file data
  request   initiate an exchange against a responder over NATS
  respond   serve the responder role over NATS`)
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	dir := fs.String("dir", defaultKeyDir(), "keystore directory")
	name := fs.String("name", "default", "key pair name")
	_ = fs.Parse(args)

	engine, err := he.NewBFV()
	if err != nil {
		return err
	}
	pc, sk, err := engine.GenerateKeys()
	if err != nil {
		return err
	}
	pub, priv, err := engine.ExportKeys(pc, sk)
	if err != nil {
		return err
	}
	if err := keystore.Save(*dir, *name, pub, priv); err != nil {
		return err
	}
	slog.Info("key pair written", "dir", *dir, "name", *name, "context_id", pc.ID(), "slots", pc.Slots())
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	m := fs.Int("m", 8192, "bloom filter bits")
	k := fs.Int("k", 5, "bloom hash functions")
	sizeA := fs.Int("size-a", 1000, "initiator set size")
	sizeB := fs.Int("size-b", 1000, "responder set size")
	overlap := fs.Int("overlap", 200, "shared elements")
	typ := fs.String("type", "ip", "indicator type (ip|domain|url|hash)")
	seed := fs.Int64("seed", 1, "generator seed")
	fileA := fs.String("file-a", "", "initiator set file (overrides synthetic)")
	fileB := fs.String("file-b", "", "responder set file (overrides synthetic)")
	plain := fs.Bool("plain", false, "use the plaintext capability instead of BFV")
	_ = fs.Parse(args)

	t, ok := ioc.ParseType(*typ)
	if !ok {
		return fmt.Errorf("unknown indicator type %q", *typ)
	}

	var setA, setB []ioc.Indicator
	var err error
	if *fileA != "" || *fileB != "" {
		if *fileA == "" || *fileB == "" {
			return fmt.Errorf("-file-a and -file-b must both be set")
		}
		if setA, err = dataset.LoadFile(*fileA, t); err != nil {
			return err
		}
		if setB, err = dataset.LoadFile(*fileB, t); err != nil {
			return err
		}
	} else {
		setA, setB = dataset.NewGenerator(*seed).Pair(t, *sizeA, *sizeB, *overlap)
	}

	capability, err := buildCapability(*plain, *m)
	if err != nil {
		return err
	}
	ex := protocol.NewExchange(capability, *m, *k)
	go func() {
		for ev := range ex.Session().Events() {
			slog.Info("progress", "session_id", ex.Session().ID(), "phase", ev.Phase, "percent", ev.Percent)
		}
	}()

	start := time.Now()
	est, err := ex.Run(ctx, setA, setB)
	if err != nil {
		return err
	}
	inter, union, jac := protocol.ExactOverlap(setA, setB)

	out := struct {
		SessionID string             `json:"session_id"`
		Elapsed   string             `json:"elapsed"`
		Estimate  *protocol.Estimate `json:"estimate"`
		Truth     struct {
			Intersection int     `json:"intersection"`
			Union        int     `json:"union"`
			Jaccard      float64 `json:"jaccard"`
		} `json:"truth"`
	}{SessionID: ex.Session().ID(), Elapsed: time.Since(start).String(), Estimate: est}
	out.Truth.Intersection = inter
	out.Truth.Union = union
	out.Truth.Jaccard = jac

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runRequest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("request", flag.ExitOnError)
	natsURL := fs.String("nats", nats.DefaultURL, "NATS server URL")
	subject := fs.String("subject", transport.DefaultSubject, "request subject")
	m := fs.Int("m", 8192, "bloom filter bits")
	k := fs.Int("k", 5, "bloom hash functions")
	file := fs.String("file", "", "indicator set file")
	typ := fs.String("type", "ip", "default indicator type")
	timeout := fs.Duration("timeout", 30*time.Second, "reply timeout")
	_ = fs.Parse(args)

	shutdownTrace := otelinit.InitTracer(ctx, "pptio-request")
	defer otelinit.Flush(context.Background(), shutdownTrace)

	t, ok := ioc.ParseType(*typ)
	if !ok {
		return fmt.Errorf("unknown indicator type %q", *typ)
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}
	set, err := dataset.LoadFile(*file, t)
	if err != nil {
		return err
	}

	engine, err := he.NewBFV()
	if err != nil {
		return err
	}
	nc, err := nats.Connect(*natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	in := protocol.NewInitiator(engine, *m, *k)
	if err := in.GenerateKeys(ctx); err != nil {
		return err
	}
	offer, err := in.EncryptFilter(ctx, set)
	if err != nil {
		return err
	}
	reply, err := transport.RequestOverlap(ctx, nc, *subject, engine, offer, *timeout)
	if err != nil {
		_ = in.Cancel(ctx)
		return err
	}
	// split-party mode: the union count comes from the exchanged scalars
	est, err := in.Finalize(ctx, reply, -1)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(est)
}

func runRespond(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("respond", flag.ExitOnError)
	natsURL := fs.String("nats", nats.DefaultURL, "NATS server URL")
	subject := fs.String("subject", transport.DefaultSubject, "request subject")
	m := fs.Int("m", 8192, "bloom filter bits")
	k := fs.Int("k", 5, "bloom hash functions")
	file := fs.String("file", "", "indicator set file")
	feed := fs.String("feed", "", "indicator feed URL (alternative to -file)")
	typ := fs.String("type", "ip", "default indicator type")
	_ = fs.Parse(args)

	shutdownTrace := otelinit.InitTracer(ctx, "pptio-respond")
	defer otelinit.Flush(context.Background(), shutdownTrace)

	t, ok := ioc.ParseType(*typ)
	if !ok {
		return fmt.Errorf("unknown indicator type %q", *typ)
	}
	var set []ioc.Indicator
	var err error
	switch {
	case *file != "":
		set, err = dataset.LoadFile(*file, t)
	case *feed != "":
		set, err = dataset.FetchFeed(ctx, nil, *feed, t)
	default:
		return fmt.Errorf("one of -file or -feed is required")
	}
	if err != nil {
		return err
	}

	engine, err := he.NewBFV()
	if err != nil {
		return err
	}
	nc, err := nats.Connect(*natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	responder := protocol.NewResponder(engine, *m, *k)
	sub, err := transport.ServeResponder(nc, *subject, engine, responder, set)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	slog.Info("responder serving", "subject", *subject, "indicators", len(set), "m", *m, "k", *k)
	<-ctx.Done()
	slog.Info("responder shutting down")
	return nil
}

func buildCapability(plain bool, m int) (he.Capability, error) {
	if plain {
		return he.NewPlain(m), nil
	}
	return he.NewBFV()
}

func defaultKeyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pptio/keys"
	}
	return home + "/.pptio/keys"
}
