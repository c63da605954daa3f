package factory

import (
	"fmt"
	"net/http"
	"sync"

	"verify-gate/internal/config"
	"verify-gate/internal/gate"
	"verify-gate/internal/handler"
	"verify-gate/internal/service"
	"verify-gate/internal/tls"
	"verify-gate/internal/util"

	"go.uber.org/zap"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	ledger              *gate.Ledger
	engine              *gate.Engine
	verificationService *service.VerificationService

	closeOnce sync.Once
}

// NewFactory loads configuration and builds every dependency.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return New(cfg, util.Get())
}

// New builds dependencies from an already validated config.
func New(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	f := &Factory{
		config: cfg,
		logger: logger,
	}

	if cfg.Server.EnableTLS {
		tlsManager, err := tls.NewTLSManager(&tls.TLSConfig{
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TLS: %w", err)
		}
		f.tlsManager = tlsManager
	}

	if err := f.initializeGate(); err != nil {
		return nil, err
	}

	logger.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Int("max_attempts", cfg.Verification.MaxAttempts),
		util.Duration("session_timeout", cfg.Verification.SessionTimeout),
		util.Int("ledger_shards", cfg.Ledger.Shards),
		util.Int("ledger_capacity", cfg.Ledger.Capacity),
	)

	return f, nil
}

func (f *Factory) initializeGate() error {
	v := f.config.Verification

	f.ledger = gate.NewLedger(v.SessionTimeout, f.config.Ledger.Shards, f.config.Ledger.Capacity)

	engine, err := gate.NewEngine(gate.Policy{
		SecretCode:     v.VerificationCode,
		SessionTimeout: v.SessionTimeout,
		MaxAttempts:    v.MaxAttempts,
	}, f.ledger)
	if err != nil {
		return fmt.Errorf("failed to initialize verification engine: %w", err)
	}
	f.engine = engine

	f.verificationService = service.NewVerificationService(
		engine,
		v.DestinationURL,
		f.config.Ledger.SweepInterval,
		f.logger,
	)
	return nil
}

// Router builds the HTTP handler tree.
func (f *Factory) Router() http.Handler {
	verifyHandler := handler.NewVerifyHandler(f.verificationService, f.logger)
	return handler.NewRouter(verifyHandler, f.logger, handler.RouterOptions{
		AllowedOrigins: f.config.CORS.AllowedOrigins,
		RequireTLS:     f.config.Server.EnableTLS,
	})
}

// LogTransport reports whether the server is exposed over TLS. Plain HTTP is
// only a warning in production.
func (f *Factory) LogTransport() {
	fields := []zap.Field{
		util.String("environment", f.config.Environment),
		util.Int("port", f.config.Server.Port),
	}
	switch {
	case f.config.Server.EnableTLS:
		f.logger.Info("Starting HTTPS server",
			append(fields, util.Int("tls_port", f.config.Server.TLSPort))...)
	case f.config.IsProduction():
		f.logger.Warn("Starting HTTP server - TLS is disabled", fields...)
	default:
		f.logger.Info("Starting HTTP server - TLS is disabled", fields...)
	}
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		f.logger.Info("Shutting down factory",
			util.Int("tracked_clients", f.ledger.Len()))
		_ = f.logger.Sync()
	})
	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) VerificationService() *service.VerificationService {
	return f.verificationService
}
