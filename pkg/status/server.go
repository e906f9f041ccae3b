// Package status serves scheduler reports, shares, metrics and a live
// telemetry stream over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/romi.go/pkg/brain"
	"github.com/robotalks/romi.go/pkg/cotask"
	"github.com/robotalks/romi.go/pkg/framework"
	"github.com/robotalks/romi.go/pkg/recorder"
	"github.com/robotalks/romi.go/pkg/share"
	"github.com/robotalks/romi.go/pkg/telemetry"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Config defines the listen address.
type Config struct {
	Addr string
}

// SetupFlags registers command line flags.
func (c *Config) SetupFlags() {
	flag.StringVar(&c.Addr, "status-addr", c.Addr, "HTTP status listen address, empty to disable")
}

// Server exposes the robot state. Nil fields disable their routes.
type Server struct {
	Config    Config
	Scheduler *cotask.Scheduler
	Registry  *share.Registry
	Status    *share.Share[brain.Status]
	Commands  *share.Queue[brain.Command]
	Hub       *telemetry.Hub
	Codec     telemetry.Codec
	Gatherer  prometheus.Gatherer
	Recorder  *recorder.Recorder
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok\n")
	})
	if s.Scheduler != nil {
		r.Get("/tasks", s.getTasks)
		r.Get("/tasks/{name}/trace", s.getTrace)
		r.Post("/tasks/reset", s.resetTasks)
	}
	if s.Registry != nil {
		r.Get("/shares", s.getShares)
	}
	if s.Status != nil {
		r.Get("/status", s.getStatus)
	}
	if s.Commands != nil {
		r.Post("/cmd", s.postCommand)
	}
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.Hub != nil {
		r.Handle("/telemetry", s.telemetryHandler())
	}
	if s.Recorder != nil {
		r.Get("/runs", s.getRuns)
		r.Get("/runs/{id}/frames", s.getFrames)
		r.Delete("/runs/{id}", s.deleteRun)
	}
	return r
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	if s.Config.Addr == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	srv := &http.Server{
		Addr:              s.Config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	glog.Infof("status: listening on %s", s.Config.Addr)
	err := framework.RunWithContextCancel(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, srv.ListenAndServe)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func writeText(w http.ResponseWriter, fn func(io.Writer) error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := fn(w); err != nil {
		glog.Warningf("status: write: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("status: encode: %v", err)
	}
}

func (s *Server) getTasks(w http.ResponseWriter, _ *http.Request) {
	writeText(w, s.Scheduler.WriteReport)
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	t := s.Scheduler.Task(chi.URLParam(r, "name"))
	if t == nil {
		http.NotFound(w, r)
		return
	}
	writeText(w, func(out io.Writer) error { return cotask.WriteTrace(out, t) })
}

func (s *Server) resetTasks(w http.ResponseWriter, _ *http.Request) {
	s.Scheduler.ResetProfiles()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getShares(w http.ResponseWriter, _ *http.Request) {
	writeText(w, s.Registry.WriteAll)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Status.Get())
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := brain.ParseCommand(strings.TrimSpace(string(body)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Commands.Put(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	glog.V(1).Infof("status: command %s", cmd)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Recorder.Runs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []recorder.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) getFrames(w http.ResponseWriter, r *http.Request) {
	frames, err := s.Recorder.Frames(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if frames == nil {
		frames = []telemetry.Frame{}
	}
	writeJSON(w, frames)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.Recorder.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
