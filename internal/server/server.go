package server

import (
	"context"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/evogen/internal/config"
	apperrors "github.com/copyleftdev/evogen/internal/errors"
	"github.com/copyleftdev/evogen/internal/logging"
	"github.com/copyleftdev/evogen/internal/monitoring"
	"github.com/copyleftdev/evogen/internal/optimization"
	"github.com/copyleftdev/evogen/internal/store"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusStopping  = "stopping"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

func terminal(status string) bool {
	return status == StatusCompleted || status == StatusStopped || status == StatusFailed
}

// RunStatus is the externally visible state of a run.
type RunStatus struct {
	ID          string              `json:"id"`
	Algorithm   string              `json:"algorithm"`
	Problem     string              `json:"problem"`
	Group       string              `json:"group"`
	Status      string              `json:"status"`
	State       string              `json:"state"`
	Progress    float64             `json:"progress"`
	Generations int                 `json:"generations"`
	BestFitness *float64            `json:"best_fitness,omitempty"`
	Best        optimization.Vector `json:"best,omitempty"`
	Evaluations int                 `json:"evaluations,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	StartTime   *time.Time          `json:"start_time,omitempty"`
	EndTime     *time.Time          `json:"end_time,omitempty"`
	LastUpdated time.Time           `json:"last_update"`
}

// run tracks one controlled algorithm. Fields below mu are guarded by it.
type run struct {
	id         string
	algorithm  string
	problem    string
	group      string
	expected   int
	controller *optimization.Controller[optimization.Vector]
	sink       *monitoring.Async

	// closed once a launched run has finished
	done chan struct{}

	mu          sync.Mutex
	status      string
	launched    bool
	createdAt   time.Time
	startTime   *time.Time
	endTime     *time.Time
	lastUpdated time.Time
	generations int
	bestFitness float64
	result      *optimization.Result[optimization.Vector]
	err         error
}

// Publish tracks the progress records of the run's engines.
func (r *run) Publish(rec optimization.Record) {
	if rec.Rank != optimization.RankFitness {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations++
	if rec.Value < r.bestFitness {
		r.bestFitness = rec.Value
	}
	r.lastUpdated = rec.Timestamp
}

func (r *run) snapshot() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RunStatus{
		ID:          r.id,
		Algorithm:   r.algorithm,
		Problem:     r.problem,
		Group:       r.group,
		Status:      r.status,
		State:       r.controller.State().String(),
		Generations: r.generations,
		CreatedAt:   r.createdAt,
		StartTime:   r.startTime,
		EndTime:     r.endTime,
		LastUpdated: r.lastUpdated,
	}
	if r.expected > 0 {
		st.Progress = math.Min(1, float64(r.generations)/float64(r.expected))
	}
	if !math.IsInf(r.bestFitness, 1) {
		best := r.bestFitness
		st.BestFitness = &best
	}
	if r.result != nil {
		best := r.result.Fitness
		st.BestFitness = &best
		st.Best = r.result.Best
		st.Evaluations = r.result.Evaluations
		st.Generations = r.result.Generations
		if r.status == StatusCompleted {
			st.Progress = 1
		}
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

// Server implements the HTTP and JSON-RPC server for the run service.
// It manages runs and provides endpoints to start, monitor, and control them.
type Server struct {
	cfg          *config.Config
	logger       Logger
	engineLogger *zap.Logger
	sink         optimization.Sink
	store        store.Store

	// parent of every run context, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runs   map[string]*run
	runsMu sync.RWMutex
}

// Option configures a Server.
type Option func(*Server)

// WithEngineLogger sets the logger handed to the engines.
func WithEngineLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.engineLogger = logger
	}
}

// WithSink sets the sink that receives the progress records of every run,
// for example a monitoring.Prometheus.
func WithSink(sink optimization.Sink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithStore sets the store that keeps the summaries of finished runs.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		engineLogger: zap.NewNop(),
		sink:         optimization.NopSink{},
		store:        store.NewMemory(),
		ctx:          ctx,
		cancel:       cancel,
		runs:         make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/problems", s.handleProblems)
		r.Get("/history", s.handleHistory)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.handleStart)
			r.Get("/", s.handleList)
			r.Get("/{id}", s.handleStatus)
			r.Post("/{id}/pause", s.handleControl(s.pause))
			r.Post("/{id}/resume", s.handleControl(s.resume))
			r.Post("/{id}/stop", s.handleControl(s.stop))
			r.Delete("/{id}", s.handleControl(s.cancelRun))
		})
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// start builds a run and, unless deferred, starts it.
func (s *Server) start(req RunRequest) (RunStatus, error) {
	if err := s.ctx.Err(); err != nil {
		return RunStatus{}, apperrors.Wrap(err, "server is shutting down").WithStatus(http.StatusServiceUnavailable)
	}

	var bufferSize int
	if s.cfg != nil {
		bufferSize = s.cfg.Optimization.MonitorBuffer
	}

	r := &run{
		problem:     req.Problem,
		status:      StatusPending,
		createdAt:   time.Now(),
		bestFitness: math.Inf(1),
		done:        make(chan struct{}),
	}
	r.lastUpdated = r.createdAt
	r.sink = monitoring.NewAsync(monitoring.Multi{r, s.sink}, bufferSize)

	bp, err := s.build(req, r.sink)
	if err != nil {
		r.sink.Close()
		return RunStatus{}, err
	}
	r.id = bp.id
	r.group = bp.group
	r.expected = bp.expected
	r.algorithm = bp.name
	r.controller = optimization.NewController(s.ctx, bp.algorithm)

	s.runsMu.Lock()
	s.runs[r.id] = r
	s.runsMu.Unlock()

	s.logger.Info("Run created", map[string]interface{}{
		"run_id":    r.id,
		"algorithm": r.algorithm,
		"problem":   r.problem,
		"group":     r.group,
		"deferred":  req.Deferred,
	})

	if !req.Deferred {
		s.launch(r, r.controller.Run())
	}
	return r.snapshot(), nil
}

// launch marks the run as running and watches its handle, once.
func (s *Server) launch(r *run, h *optimization.Handle[optimization.Vector]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.launched || h == nil {
		return
	}
	r.launched = true
	now := time.Now()
	r.startTime = &now
	r.lastUpdated = now
	r.status = StatusRunning

	s.wg.Add(1)
	go s.watch(r, h)
}

func (s *Server) watch(r *run, h *optimization.Handle[optimization.Vector]) {
	defer s.wg.Done()
	defer close(r.done)

	<-h.Done()
	res, err := h.Wait(context.Background())
	r.sink.Close()

	r.mu.Lock()
	now := time.Now()
	r.endTime = &now
	r.lastUpdated = now
	switch {
	case err != nil:
		r.status = StatusFailed
		r.err = err
	case res.Cancelled:
		r.status = StatusStopped
		r.result = &res
	default:
		r.status = StatusCompleted
		r.result = &res
	}
	status := r.status
	r.mu.Unlock()

	s.record(r.snapshot())

	fields := map[string]interface{}{
		"run_id": r.id,
		"status": status,
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger.Error("Run failed", fields)
		return
	}
	fields["best_fitness"] = res.Fitness
	fields["generations"] = res.Generations
	fields["evaluations"] = res.Evaluations
	s.logger.Info("Run finished", fields)
}

// record saves the summary of a finished run. Failures are logged only.
func (s *Server) record(st RunStatus) {
	sum := store.Summary{
		ID:          st.ID,
		Algorithm:   st.Algorithm,
		Problem:     st.Problem,
		Group:       st.Group,
		Status:      st.Status,
		Fitness:     st.BestFitness,
		Best:        st.Best,
		Generations: st.Generations,
		Evaluations: st.Evaluations,
		Cancelled:   st.Status == StatusStopped,
		Error:       st.Error,
		CreatedAt:   st.CreatedAt,
		FinishedAt:  time.Now(),
	}
	if st.EndTime != nil {
		sum.FinishedAt = *st.EndTime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, sum); err != nil {
		s.logger.Warn("Failed to record run", map[string]interface{}{
			"run_id": st.ID,
			"error":  err.Error(),
		})
	}
}

// history lists the summaries of finished runs, most recent first.
func (s *Server) history(f store.Filter) ([]store.Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperrors.Wrap(err, "list run history")
	}
	return out, nil
}

// Execute starts req and blocks until the run has finished. Cancelling ctx
// stops the run; its partial result is still returned.
func (s *Server) Execute(ctx context.Context, req RunRequest) (RunStatus, error) {
	req.Deferred = true
	st, err := s.start(req)
	if err != nil {
		return RunStatus{}, err
	}
	r, err := s.get(st.ID)
	if err != nil {
		return RunStatus{}, err
	}

	s.launch(r, r.controller.Run())
	stop := context.AfterFunc(ctx, func() {
		_, _ = s.stop(r.id)
	})
	defer stop()

	<-r.done
	return r.snapshot(), nil
}

func (s *Server) get(id string) (*run, error) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("run %s", id)
	}
	return r, nil
}

func (s *Server) status(id string) (RunStatus, error) {
	r, err := s.get(id)
	if err != nil {
		return RunStatus{}, err
	}
	return r.snapshot(), nil
}

func (s *Server) list() []RunStatus {
	s.runsMu.RLock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.runsMu.RUnlock()

	out := make([]RunStatus, len(runs))
	for i, r := range runs {
		out[i] = r.snapshot()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// requestStop asks a started run to stop. Pending runs are left alone: the
// run context is replaced when they are resumed.
func (s *Server) requestStop(id, action string, stop func(*run) *optimization.Handle[optimization.Vector]) (RunStatus, error) {
	r, err := s.get(id)
	if err != nil {
		return RunStatus{}, err
	}

	r.mu.Lock()
	if terminal(r.status) {
		status := r.status
		r.mu.Unlock()
		return RunStatus{}, apperrors.Conflict("cannot %s run %s with status %s", action, id, status)
	}
	if h := stop(r); h != nil && r.status == StatusRunning {
		r.status = StatusStopping
		r.lastUpdated = time.Now()
	}
	r.mu.Unlock()

	s.logger.Info("Run "+action+" requested", map[string]interface{}{"run_id": id})
	return r.snapshot(), nil
}

func (s *Server) pause(id string) (RunStatus, error) {
	return s.requestStop(id, "pause", func(r *run) *optimization.Handle[optimization.Vector] {
		return r.controller.Pause()
	})
}

func (s *Server) stop(id string) (RunStatus, error) {
	return s.requestStop(id, "stop", func(r *run) *optimization.Handle[optimization.Vector] {
		return r.controller.Stop()
	})
}

// cancelRun cancels a run. A pending run is stopped for good.
func (s *Server) cancelRun(id string) (RunStatus, error) {
	r, err := s.get(id)
	if err != nil {
		return RunStatus{}, err
	}

	r.mu.Lock()
	if terminal(r.status) {
		status := r.status
		r.mu.Unlock()
		return RunStatus{}, apperrors.Conflict("cannot cancel run %s with status %s", id, status)
	}
	r.controller.Cancel()
	now := time.Now()
	r.lastUpdated = now
	pending := r.status == StatusPending
	switch r.status {
	case StatusPending:
		r.status = StatusStopped
		r.endTime = &now
	case StatusRunning:
		r.status = StatusStopping
	}
	r.mu.Unlock()

	// the delivery goroutine publishes into r, so close outside the lock
	if pending {
		r.sink.Close()
	}

	s.logger.Info("Run cancelled", map[string]interface{}{"run_id": id})
	return r.snapshot(), nil
}

// resume starts a pending run. A run that was started before keeps its
// handle; a paused run does not continue.
func (s *Server) resume(id string) (RunStatus, error) {
	r, err := s.get(id)
	if err != nil {
		return RunStatus{}, err
	}

	r.mu.Lock()
	pending := r.status == StatusPending
	r.mu.Unlock()

	if pending {
		s.launch(r, r.controller.Resume())
		s.logger.Info("Run resumed", map[string]interface{}{"run_id": id})
	}
	return r.snapshot(), nil
}

// Close cancels all runs and waits until they have returned.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()

	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	for _, r := range s.runs {
		r.mu.Lock()
		pending := r.status == StatusPending
		if pending {
			r.status = StatusStopped
		}
		r.mu.Unlock()
		if pending {
			r.sink.Close()
		}
	}
	return nil
}
