// Package supervisor checks that the drafting backend is reachable and can
// start it when configured to.
package supervisor

import (
	"context"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Supervisor probes a health endpoint and optionally launches the backend.
type Supervisor struct {
	healthURL string
	command   []string
	poll      time.Duration
	wait      time.Duration
	autoStart bool
	http      *http.Client

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithHTTPClient overrides the probe client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Supervisor) { s.http = c }
}

// WithIntervals overrides the poll interval and the total wait.
func WithIntervals(poll, wait time.Duration) Option {
	return func(s *Supervisor) {
		if poll > 0 {
			s.poll = poll
		}
		if wait > 0 {
			s.wait = wait
		}
	}
}

// New creates a Supervisor from config.
func New(cfg config.SupervisorConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		healthURL: cfg.HealthURL,
		command:   strings.Fields(cfg.StartCommand),
		poll:      2 * time.Second,
		wait:      30 * time.Second,
		autoStart: cfg.AutoStart,
		http:      &http.Client{Timeout: 3 * time.Second},
	}
	if cfg.PollSecs > 0 {
		s.poll = time.Duration(cfg.PollSecs) * time.Second
	}
	if cfg.WaitSecs > 0 {
		s.wait = time.Duration(cfg.WaitSecs) * time.Second
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IsRunning reports whether the health endpoint answers 200.
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode == http.StatusOK
}

// Start launches the configured start command in the background. The process
// outlives ctx; call Stop to end it.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.command) == 0 {
		return eris.New("supervisor: no start command configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive() {
		return nil
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), s.command[0], s.command[1:]...)
	if err := cmd.Start(); err != nil {
		return eris.Wrapf(err, "supervisor: start %s", s.command[0])
	}
	done := make(chan struct{})
	s.cmd, s.done = cmd, done
	go func() {
		defer close(done)
		err := cmd.Wait()
		zap.L().Info("supervisor: backend exited", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	}()
	zap.L().Info("supervisor: backend started", zap.Int("pid", cmd.Process.Pid), zap.Strings("command", s.command))
	return nil
}

// Stop kills a process started by Start.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive() {
		return nil
	}
	err := s.cmd.Process.Kill()
	<-s.done
	s.cmd, s.done = nil, nil
	return eris.Wrap(err, "supervisor: stop")
}

// alive reports whether a started process has not exited. Callers hold mu.
func (s *Supervisor) alive() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// EnsureRunning returns nil when the backend is healthy. Otherwise it starts
// it (when auto start is on) and polls until the wait elapses. Failures are
// ServiceUnavailable.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	if s.IsRunning(ctx) {
		return nil
	}
	if !s.autoStart || len(s.command) == 0 {
		return model.NewFailure(model.ErrUnavailable, model.StageHealth, "backend not reachable at %s", s.healthURL)
	}

	if err := s.Start(ctx); err != nil {
		return model.NewFailure(model.ErrUnavailable, model.StageHealth, "%v", err)
	}

	deadline := time.NewTimer(s.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return model.NewFailure(model.ErrUnavailable, model.StageHealth, "%v", ctx.Err())
		case <-deadline.C:
			return model.NewFailure(model.ErrUnavailable, model.StageHealth,
				"backend did not become healthy within %s", s.wait)
		case <-ticker.C:
			if s.IsRunning(ctx) {
				return nil
			}
		}
	}
}
