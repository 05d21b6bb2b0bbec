package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/filestore"
	"github.com/Roelanb/webpsync/internal/htaccess"
	"github.com/Roelanb/webpsync/internal/observability"
	"github.com/Roelanb/webpsync/internal/settings"
)

const maxBody = 1 << 20

// Control is what the administrative API drives.
type Control interface {
	// Config returns the stored config, or the defaults and false when none exists.
	Config() (config.Config, bool, error)
	Submit(sub config.Submission) settings.SubmitReport
	SyncRules(force bool) (htaccess.Result, bool, error)
	// Rules returns the rule lines the stored config produces.
	Rules() ([]string, error)
	OptionsDocument() ([]byte, error)
	// State returns bookkeeping kept outside the config document.
	State() (any, error)
}

type Server struct {
	log   observability.Logger
	ctrl  Control
	mux   *http.ServeMux
	srv   *http.Server
	addr  string
	ln    net.Listener
	mu    sync.Mutex
	start bool
}

func New(log observability.Logger, ctrl Control, addr string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		log:  log,
		ctrl: ctrl,
		mux:  mux,
		addr: addr,
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/rules", s.handleRules)
	mux.HandleFunc("/rules/sync", s.handleRulesSync)
	mux.HandleFunc("/options", s.handleOptions)
	mux.HandleFunc("/state", s.handleState)
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Infow("api server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("api server error", "error", err)
		}
	}()
	s.start = true
	go func() {
		<-ctx.Done()
		_ = s.Shutdown(context.Background())
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.start = false
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, filestore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, filestore.ErrParse):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, filestore.ErrPermission):
		status = http.StatusForbidden
	}
	s.log.Errorw("api request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, existed, err := s.ctrl.Config()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("X-Config-Exists", strconv.FormatBool(existed))
		writeJSON(w, http.StatusOK, config.Redacted(cfg))
	case http.MethodPost:
		var sub config.Submission
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
		if err := dec.Decode(&sub); err != nil {
			http.Error(w, "decode submission: "+err.Error(), http.StatusBadRequest)
			return
		}
		rep := s.ctrl.Submit(sub)
		status := http.StatusOK
		if !rep.Save.ConfigSaved {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, rep)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	lines, err := s.ctrl.Rules()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
}

func (s *Server) handleRulesSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	res, ran, err := s.ctrl.SyncRules(force)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body := map[string]any{"ran": ran}
	if ran {
		body["result"] = res
	}
	status := http.StatusOK
	if ran && res.Failed() {
		status = http.StatusConflict
	}
	writeJSON(w, status, body)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	raw, err := s.ctrl.OptionsDocument()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.ctrl.State()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
