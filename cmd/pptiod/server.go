package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/mitanshubhoot/PP-TIO/dataset"
	"github.com/mitanshubhoot/PP-TIO/he"
	"github.com/mitanshubhoot/PP-TIO/internal/ratelimit"
	"github.com/mitanshubhoot/PP-TIO/internal/store"
	"github.com/mitanshubhoot/PP-TIO/ioc"
	"github.com/mitanshubhoot/PP-TIO/protocol"
)

type simRequest struct {
	M       int    `json:"m"`
	K       int    `json:"k"`
	SizeA   int    `json:"size_a"`
	SizeB   int    `json:"size_b"`
	Overlap int    `json:"overlap"`
	Type    string `json:"type"`
	Seed    int64  `json:"seed"`
}

type simStatus struct {
	SessionID  string             `json:"session_id"`
	Phase      string             `json:"phase"`
	FailReason string             `json:"fail_reason,omitempty"`
	Estimate   *protocol.Estimate `json:"estimate,omitempty"`
}

// simulation is one in-flight or recently finished run. Events are
// recorded for SSE replay so a late subscriber still sees the full
// progression.
type simulation struct {
	ex *protocol.Exchange

	mu     sync.Mutex
	events []protocol.Event
	subs   map[chan protocol.Event]struct{}
	done   chan struct{}
}

func (s *simulation) watch() {
	for ev := range s.ex.Session().Events() {
		s.mu.Lock()
		s.events = append(s.events, ev)
		for ch := range s.subs {
			select {
			case ch <- ev:
			default:
			}
		}
		s.mu.Unlock()
	}
	s.mu.Lock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()
	close(s.done)
}

// subscribe returns the replayed history plus a live channel, nil once
// the simulation is finished.
func (s *simulation) subscribe() ([]protocol.Event, chan protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append([]protocol.Event(nil), s.events...)
	if s.subs == nil {
		return history, nil
	}
	ch := make(chan protocol.Event, 16)
	s.subs[ch] = struct{}{}
	return history, ch
}

func (s *simulation) unsubscribe(ch chan protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs != nil {
		delete(s.subs, ch)
	}
}

type server struct {
	mu      sync.Mutex
	sims    map[string]*simulation
	archive *store.Store
	limiter *ratelimit.Limiter
	newCap  func(m int) (he.Capability, error)
}

func newServer(archive *store.Store, limiter *ratelimit.Limiter, plain bool) (*server, error) {
	newCap := func(m int) (he.Capability, error) { return he.NewBFV() }
	if plain {
		newCap = func(m int) (he.Capability, error) { return he.NewPlain(m), nil }
	}
	return &server{
		sims:    make(map[string]*simulation),
		archive: archive,
		limiter: limiter,
		newCap:  newCap,
	}, nil
}

func (s *server) handleSimulations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.startSimulation(w, r)
	case http.MethodGet:
		recs, err := s.archive.Recent(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": recs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *server) startSimulation(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "simulation rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	var req simRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.M <= 0 || req.K <= 0 || req.SizeA <= 0 || req.SizeB <= 0 {
		http.Error(w, "m, k, size_a and size_b must be positive", http.StatusBadRequest)
		return
	}
	t, ok := ioc.ParseType(req.Type)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown indicator type %q", req.Type), http.StatusBadRequest)
		return
	}

	capability, err := s.newCap(req.M)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ex := protocol.NewExchange(capability, req.M, req.K)
	sim := &simulation{
		ex:   ex,
		subs: make(map[chan protocol.Event]struct{}),
		done: make(chan struct{}),
	}
	id := ex.Session().ID()
	s.mu.Lock()
	s.sims[id] = sim
	s.mu.Unlock()

	go sim.watch()
	go s.run(sim, req, t)

	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
}

func (s *server) run(sim *simulation, req simRequest, t ioc.Type) {
	setA, setB := dataset.NewGenerator(req.Seed).Pair(t, req.SizeA, req.SizeB, req.Overlap)
	sess := sim.ex.Session()
	est, err := sim.ex.Run(context.Background(), setA, setB)
	if err != nil {
		slog.Warn("simulation failed", "session_id", sess.ID(), "error", err)
	}

	rec := &store.Record{SessionID: sess.ID(), M: req.M, K: req.K, Phase: sess.Phase().String()}
	if reason, _, failed := sess.Failure(); failed {
		rec.FailReason = string(reason)
	}
	rec.Estimate = est
	if err := s.archive.Save(context.Background(), rec); err != nil {
		slog.Error("archive write failed", "session_id", sess.ID(), "error", err)
	}
}

func (s *server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/simulations/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch sub {
	case "":
		s.status(w, r, id)
	case "events":
		s.streamEvents(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *server) status(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	sim, ok := s.sims[id]
	s.mu.Unlock()
	if ok {
		sess := sim.ex.Session()
		st := simStatus{SessionID: id, Phase: sess.Phase().String()}
		if est, done := sess.Result(); done {
			st.Estimate = est
		}
		if reason, _, failed := sess.Failure(); failed {
			st.FailReason = string(reason)
		}
		writeJSON(w, http.StatusOK, st)
		return
	}
	rec, err := s.archive.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, simStatus{
		SessionID:  rec.SessionID,
		Phase:      rec.Phase,
		FailReason: rec.FailReason,
		Estimate:   rec.Estimate,
	})
}

// streamEvents serves the session progress as SSE. The stream replays
// history first, so subscribing after completion still yields every
// transition before EOF.
func (s *server) streamEvents(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	sim, ok := s.sims[id]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	history, live := sim.subscribe()
	if live != nil {
		defer sim.unsubscribe(live)
	}
	for _, ev := range history {
		writeSSE(w, ev)
	}
	flusher.Flush()
	if live == nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
