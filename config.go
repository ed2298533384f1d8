package scopez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid scopez config")

// Config holds tracer configuration read from SCOPEZ_* environment variables.
type Config struct {
	Discipline    string `envconfig:"DISCIPLINE" default:"refcount"`
	IDMode        string `envconfig:"ID_MODE" default:"random"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	Workers       int    `envconfig:"WORKERS" default:"0"`
	QueueSize     int    `envconfig:"QUEUE_SIZE" default:"1024"`
	FinishOnClose bool   `envconfig:"FINISH_ON_CLOSE" default:"true"`
}

// DefaultConfig returns the configuration used when no variables are set.
func DefaultConfig() Config {
	return Config{
		Discipline:    disciplineRefCount,
		IDMode:        "random",
		LogLevel:      "info",
		QueueSize:     1024,
		FinishOnClose: true,
	}
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("scopez", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated values and pool sizes.
func (c Config) Validate() error {
	switch strings.ToLower(c.Discipline) {
	case disciplineRefCount, disciplineStack:
	default:
		return fmt.Errorf("%w: unknown discipline %q", ErrInvalidConfig, c.Discipline)
	}
	switch strings.ToLower(c.IDMode) {
	case "random", "sequential":
	default:
		return fmt.Errorf("%w: unknown id mode %q", ErrInvalidConfig, c.IDMode)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidConfig)
	}
	if c.Workers > 0 && c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size must be > 0 with workers", ErrInvalidConfig)
	}
	return nil
}

// NewFromConfig builds a Tracer from cfg. The logger is filtered to
// cfg.LogLevel; reg may be nil to skip metrics.
func NewFromConfig(cfg Config, logger *zap.Logger, reg prometheus.Registerer) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	} else {
		level, _ := zapcore.ParseLevel(cfg.LogLevel)
		logger = logger.WithOptions(zap.IncreaseLevel(level))
	}

	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}

	managerOpts := []ManagerOption{
		WithManagerLogger(logger),
		WithManagerMetrics(metrics),
	}
	var manager ScopeManager
	if strings.EqualFold(cfg.Discipline, disciplineStack) {
		if !cfg.FinishOnClose {
			managerOpts = append(managerOpts, SkipFinishOnClose())
		}
		manager = NewStackManager(managerOpts...)
	} else {
		manager = NewRefCountManager(managerOpts...)
	}

	ids := RandomIDs()
	if strings.EqualFold(cfg.IDMode, "sequential") {
		ids = SequentialIDs()
	}

	t := New(
		WithLogger(logger),
		WithMetrics(metrics),
		WithScopeManager(manager),
		WithIDGenerator(ids),
	)
	if cfg.Workers > 0 {
		if err := t.EnableWorkerPool(cfg.Workers, cfg.QueueSize); err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to start worker pool: %w", err)
		}
	}
	return t, nil
}
