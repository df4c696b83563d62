// Package api is the transport collaborator around the engine core: a small
// REST surface for registration, orders and round control, plus a WebSocket
// feed of per-tick deltas. The core stays transport-agnostic; this package
// only consumes its returned deltas and snapshots.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"tradepit/params"
	"tradepit/pkg/engine"
	"tradepit/pkg/metrics"
)

type Server struct {
	sched  *engine.Scheduler
	round  params.Round // round template used by /round/start
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(sched *engine.Scheduler, round params.Round, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		sched:  sched,
		round:  round,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.routes()
	return s
}

// BroadcastDelta forwards one consolidated tick delta to all WebSocket
// clients. Wire it to Scheduler.OnDelta.
func (s *Server) BroadcastDelta(d *engine.Delta) {
	payload, err := json.Marshal(d)
	if err != nil {
		s.log.Warn("delta marshal failed", zap.Error(err))
		return
	}
	s.hub.Broadcast(payload)
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/assets/{symbol}/depth", s.handleDepth).Methods("GET")
	api.HandleFunc("/assets/{symbol}/candles", s.handleCandles).Methods("GET")
	api.HandleFunc("/players", s.handleRegister).Methods("POST")
	api.HandleFunc("/players/{id}", s.handlePlayer).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmit).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/positions/close", s.handleCloseAll).Methods("POST")

	api.HandleFunc("/round/start", s.handleRoundStart).Methods("POST")
	api.HandleFunc("/round/pause", s.handleRoundPause).Methods("POST")
	api.HandleFunc("/round/resume", s.handleRoundResume).Methods("POST")
	api.HandleFunc("/round/stop", s.handleRoundStop).Methods("POST")
	api.HandleFunc("/round/step", s.handleRoundStep).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", metrics.Handler())
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe(addr string) error {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.log.Info("api listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		State:   s.sched.State().String(),
		Symbols: s.sched.Symbols(),
	})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	levels := 10
	if v := r.URL.Query().Get("levels"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			levels = n
		}
	}
	snap, ok := s.sched.Depth(symbol, levels)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown asset")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	candles, ok := s.sched.CandleHistory(symbol)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown asset")
		return
	}
	s.writeJSON(w, http.StatusOK, candles)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h, err := s.sched.RegisterPlayer(req.ID, req.Name)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pu, ok := s.sched.PlayerView(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown player")
		return
	}
	s.writeJSON(w, http.StatusOK, pu)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid side")
		return
	}
	in := engine.Intent{
		Symbol:     req.Symbol,
		Side:       side,
		Price:      req.Price,
		Qty:        req.Qty,
		DisplayQty: req.DisplayQty,
		Algo:       req.Algo,
		TakeTarget: req.TakeTarget,
	}
	if req.TakeTarget == 0 {
		typ, ok := parseOrderType(req.Type)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "invalid order type")
			return
		}
		in.Type = typ
	}
	s.writeJSON(w, http.StatusOK, s.sched.Submit(req.Player, in))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	var canceled []engine.OrderID
	if req.All {
		canceled = s.sched.CancelAll(req.Player)
	} else {
		canceled = s.sched.Cancel(req.Player, req.Orders)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"canceled": canceled})
}

func (s *Server) handleCloseAll(w http.ResponseWriter, r *http.Request) {
	var req closeAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sched.CloseAll(req.Player))
}

func (s *Server) handleRoundStart(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.StartRound(s.round); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleRoundPause(w http.ResponseWriter, r *http.Request) {
	s.sched.Pause()
	s.handleStatus(w, r)
}

func (s *Server) handleRoundResume(w http.ResponseWriter, r *http.Request) {
	s.sched.Resume()
	s.handleStatus(w, r)
}

func (s *Server) handleRoundStop(w http.ResponseWriter, r *http.Request) {
	s.sched.StopRound()
	s.handleStatus(w, r)
}

func (s *Server) handleRoundStep(w http.ResponseWriter, r *http.Request) {
	d := s.sched.StepTick()
	if d == nil {
		s.writeError(w, http.StatusConflict, "round not steppable")
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}
