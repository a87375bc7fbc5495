package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/aura/internal/config"
	"github.com/harun/aura/internal/logger"
	"github.com/harun/aura/internal/observability"
	"github.com/harun/aura/internal/server"
	"github.com/harun/aura/pkg/agent"
	"github.com/harun/aura/pkg/coretools"
	"github.com/harun/aura/pkg/memory"
	"github.com/harun/aura/pkg/toolexecutor"
)

// Daemon owns the assistant's components: tool dispatcher, conversation
// store, agent runner and API server.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	dispatcher *toolexecutor.Dispatcher
	store      *memory.SQLiteStore
	runner     *agent.Runner

	// Services
	apiServer *server.Server
	lifecycle *LifecycleManager

	serveErr chan error

	providerFactory agent.ProviderCreator
	capturer        coretools.Capturer

	startTime time.Time
	running   bool
	closeOnce sync.Once
	mu        sync.RWMutex
}

// Option customizes daemon construction.
type Option func(*Daemon)

// WithProviderFactory replaces the LLM provider factory.
func WithProviderFactory(factory agent.ProviderCreator) Option {
	return func(d *Daemon) {
		d.providerFactory = factory
	}
}

// WithCapturer replaces the screenshot capturer derived from config.
func WithCapturer(capturer coretools.Capturer) Option {
	return func(d *Daemon) {
		d.capturer = capturer
	}
}

// New creates a new daemon instance. Nothing listens until Start.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	observability.EnsureRegistered()

	d := &Daemon{
		config:   cfg,
		logger:   log,
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			log.Debug().Str("path", cfg.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules builds the dispatcher, store and runner in dependency
// order.
func (d *Daemon) initializeCoreModules() error {
	dispatcher, err := NewToolDispatcher(d.config, d.logger, d.capturer)
	if err != nil {
		return err
	}
	d.dispatcher = dispatcher

	store, err := memory.NewSQLiteStore(memory.Config{
		DBPath:       d.config.Memory.DBPath,
		Conversation: d.config.Memory.Conversation,
		Logger:       d.logger.Component("memory"),
	})
	if err != nil {
		return fmt.Errorf("failed to create memory store: %w", err)
	}
	d.store = store
	d.logger.Info().Str("db_path", d.config.Memory.DBPath).Msg("Memory store initialized")

	runner, err := agent.NewRunner(agent.Config{
		Dispatcher:      dispatcher,
		Store:           store,
		Logger:          d.logger.Component("agent"),
		AuthProfiles:    convertAuthProfiles(d.config.AI.Profiles),
		ProviderFactory: d.providerFactory,
		Agent: agent.AgentConfig{
			Model:        d.config.Agent.Model,
			Temperature:  d.config.Agent.Temperature,
			MaxTokens:    d.config.Agent.MaxTokens,
			SystemPrompt: d.config.Agent.SystemPrompt,
			MaxRetries:   d.config.Agent.MaxRetries,
		},
		Conversation: d.config.Memory.Conversation,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent runner: %w", err)
	}
	d.runner = runner
	d.logger.Info().Str("model", d.config.Agent.Model).Int("profiles", len(d.config.AI.Profiles)).Msg("Agent runner initialized")

	return nil
}

// initializeServices builds the API server around the runner.
func (d *Daemon) initializeServices() error {
	apiServer, err := server.NewServer(server.Options{
		Host:               d.config.Server.Host,
		Port:               d.config.Server.Port,
		ShutdownTimeout:    time.Duration(d.config.Server.ShutdownTimeout) * time.Second,
		RateLimitPerMinute: d.config.Server.RateLimitPerMinute,
		Logger:             d.logger.Component("server"),
	}, d.runner)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	d.apiServer = apiServer
	return nil
}

// NewToolDispatcher builds the tool dispatcher from the tools section alone.
// A nil capturer is derived from tools.screenshot; when no capture command is
// available captureScreenshot reports that it is not configured.
func NewToolDispatcher(cfg *config.Config, log *logger.Logger, capturer coretools.Capturer) (*toolexecutor.Dispatcher, error) {
	toolLogger := log.Component("tools")

	roots := cfg.Tools.Roots
	if len(roots) == 0 {
		roots = coretools.DefaultRoots(cfg.Tools.Workspace)
	}

	if capturer == nil {
		screenshot := cfg.Tools.Screenshot
		commandCapturer, err := coretools.NewCommandCapturer(screenshot.Command, time.Duration(screenshot.TimeoutSeconds)*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("Screenshot capture disabled")
		} else {
			capturer = commandCapturer
		}
	}

	dispatcher, err := coretools.NewDispatcher(coretools.Options{
		Roots:         roots,
		Capturer:      capturer,
		ScreenshotDir: cfg.Tools.Screenshot.Dir,
		Logger:        &toolLogger,
	},
		toolexecutor.WithTimeout(cfg.Tools.ToolTimeout()),
		toolexecutor.WithLogger(toolLogger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool dispatcher: %w", err)
	}

	log.Info().Strs("roots", roots).Strs("tools", dispatcher.Names()).Msg("Tool dispatcher initialized")
	return dispatcher, nil
}

// convertAuthProfiles converts config auth profiles to agent auth profiles
func convertAuthProfiles(profiles []config.AIProfile) []agent.AuthProfile {
	result := make([]agent.AuthProfile, len(profiles))
	for i, p := range profiles {
		result[i] = agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Model:    p.Model,
			Priority: p.Priority,
		}
	}
	return result
}

// Start writes the PID file and starts serving the API in the background.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting Aura daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	go func() {
		if err := d.apiServer.Start(); err != nil {
			d.serveErr <- err
		}
	}()

	d.logger.Info().Str("addr", d.config.Server.Addr()).Msg("Daemon started successfully")

	return nil
}

// Stop drains the API server, removes the PID file and releases the store.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Aura daemon")

	if err := d.apiServer.Stop(context.Background()); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop API server")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.Close()

	d.logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Close releases the store and audit log. It is used directly by commands
// that never Start the daemon.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		if d.store != nil {
			if err := d.store.Close(); err != nil {
				d.logger.Error().Err(err).Msg("Failed to close memory store")
			}
		}
		if err := observability.CloseAuditLogger(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close audit logger")
		}
	})
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT/SIGTERM or a serve failure, then stops the daemon.
// The serve error, if any, is returned.
func (d *Daemon) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	return d.waitFor(sigChan)
}

func (d *Daemon) waitFor(sigChan <-chan os.Signal) error {
	var serveErr error
	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case serveErr = <-d.serveErr:
		d.logger.Error().Err(serveErr).Msg("API server failed")
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
	return serveErr
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetRunner returns the agent runner
func (d *Daemon) GetRunner() *agent.Runner {
	return d.runner
}

// GetDispatcher returns the tool dispatcher
func (d *Daemon) GetDispatcher() *toolexecutor.Dispatcher {
	return d.dispatcher
}

// GetServer returns the API server
func (d *Daemon) GetServer() *server.Server {
	return d.apiServer
}

// GetLifecycle returns the lifecycle manager
func (d *Daemon) GetLifecycle() *LifecycleManager {
	return d.lifecycle
}
