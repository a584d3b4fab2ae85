package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status represents the current state of the background service.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// defaultHealthCheckInterval is how often client health is checked.
const defaultHealthCheckInterval = 30 * time.Second

// Config holds configuration for the background service.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// HealthCheckFunc reports the connection state of every kept client,
	// keyed by token. If nil, no health monitoring is done.
	HealthCheckFunc func(ctx context.Context) map[string]bool

	// HealthCheckInterval is how often to run health checks.
	HealthCheckInterval time.Duration

	// OnStart is called for every new token.
	OnStart func(token string)

	// OnStop runs synchronously inside Stop, before the service reports
	// stopped. Its error is returned from Stop.
	OnStop func(ctx context.Context) error
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		HealthCheckInterval: defaultHealthCheckInterval,
	}
}

// Logger defines the logging interface for the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service keeps MQTT clients alive in the background.
//
// The registry calls Start with a broker token each time it creates a
// client. The first token moves the service to running and starts the
// health monitor. Stop tears everything down through OnStop.
type Service struct {
	config Config
	logger Logger

	mu        sync.RWMutex
	status    Status
	tokens    map[string]time.Time
	startTime time.Time
	lastError error

	healthFailures int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped service with the given configuration.
func New(cfg Config) *Service {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = defaultHealthCheckInterval
	}
	if cfg.Name == "" {
		cfg.Name = "mqtt-clients"
	}

	return &Service{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
		tokens: make(map[string]time.Time),
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetOnStop replaces the stop hook. It lets the hook reference objects
// built after the service.
func (s *Service) SetOnStop(fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.config.OnStop = fn
	s.mu.Unlock()
}

// SetHealthCheck replaces the health check function. It takes effect on
// the next start.
func (s *Service) SetHealthCheck(fn func(ctx context.Context) map[string]bool) {
	s.mu.Lock()
	s.config.HealthCheckFunc = fn
	s.mu.Unlock()
}

// Start records token and makes sure the service is running. It is safe
// to call repeatedly with the same token.
func (s *Service) Start(token string) {
	s.mu.Lock()
	_, known := s.tokens[token]
	if !known {
		s.tokens[token] = time.Now()
	}

	var (
		ctx     context.Context
		done    chan struct{}
		started bool
	)
	if s.status == StatusStopped {
		ctx, s.cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
		s.done = done
		s.status = StatusRunning
		s.startTime = time.Now()
		started = true
	}
	onStart := s.config.OnStart
	check := s.config.HealthCheckFunc
	s.mu.Unlock()

	if started {
		s.logger.Info("background service started", "name", s.config.Name)
		go s.monitor(ctx, done, check)
	}

	if !known {
		s.logger.Info("background service keeping client", "name", s.config.Name, "token", token)
		if onStart != nil {
			onStart(token)
		}
	}
}

// monitor runs the periodic health check until ctx is cancelled.
func (s *Service) monitor(ctx context.Context, done chan<- struct{}, check func(context.Context) map[string]bool) {
	defer close(done)

	if check == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx, check)
		}
	}
}

func (s *Service) checkHealth(ctx context.Context, check func(context.Context) map[string]bool) {
	checkCtx, cancel := context.WithTimeout(ctx, s.config.HealthCheckInterval/2)
	defer cancel()

	health := check(checkCtx)

	var down []string
	for token, ok := range health {
		if !ok {
			down = append(down, token)
		}
	}
	sort.Strings(down)

	s.mu.Lock()
	previous := s.healthFailures
	s.healthFailures = len(down)
	s.mu.Unlock()

	switch {
	case len(down) > 0:
		s.logger.Warn("health check found disconnected clients",
			"name", s.config.Name,
			"disconnected", down,
			"total", len(health),
		)
	case previous > 0:
		s.logger.Info("health check recovered", "name", s.config.Name, "total", len(health))
	default:
		s.logger.Debug("health check passed", "name", s.config.Name, "total", len(health))
	}
}

// Stop halts the health monitor and runs OnStop synchronously. The service
// reports stopped only after OnStop returned. Stopping a stopped service
// is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusStopped || s.status == StatusStopping {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStopping
	cancel := s.cancel
	done := s.done
	onStop := s.config.OnStop
	s.mu.Unlock()

	s.logger.Info("background service stopping", "name", s.config.Name)

	if cancel != nil {
		cancel()
		<-done
	}

	var err error
	if onStop != nil {
		err = onStop(ctx)
	}
	if err != nil {
		err = fmt.Errorf("service %s stop: %w", s.config.Name, err)
		s.logger.Error("background service stopped with errors", "name", s.config.Name, "error", err)
	} else {
		s.logger.Info("background service stopped", "name", s.config.Name)
	}

	s.mu.Lock()
	s.status = StatusStopped
	s.lastError = err
	s.tokens = make(map[string]time.Time)
	s.cancel = nil
	s.done = nil
	s.healthFailures = 0
	s.mu.Unlock()

	return err
}

// Status returns the current status.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsRunning returns true if the service is running.
func (s *Service) IsRunning() bool {
	return s.Status() == StatusRunning
}

// LastError returns the error from the last Stop, if any.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Tokens returns the tokens the service keeps, sorted.
func (s *Service) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tokens))
	for t := range s.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Uptime returns how long the service has been running.
func (s *Service) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning {
		return 0
	}
	return time.Since(s.startTime)
}

// Stats contains service statistics.
type Stats struct {
	Name           string
	Status         Status
	Tokens         int
	Uptime         time.Duration
	HealthFailures int
	LastError      error
}

// Stats returns current service statistics.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if s.status == StatusRunning {
		uptime = time.Since(s.startTime)
	}

	return Stats{
		Name:           s.config.Name,
		Status:         s.status,
		Tokens:         len(s.tokens),
		Uptime:         uptime,
		HealthFailures: s.healthFailures,
		LastError:      s.lastError,
	}
}
