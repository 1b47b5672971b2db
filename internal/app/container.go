package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"allocation-generator/internal/clients"
	"allocation-generator/internal/config"
	"allocation-generator/internal/db"
	"allocation-generator/internal/events"
	"allocation-generator/internal/repository"
	"allocation-generator/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container holds the components a command needs. Every component is
// optional and created on first use.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database
	DB      *gorm.DB
	Reports repository.ReportRepository

	// Chain and events
	Registry  *clients.SyrupDripClient
	Publisher events.Publisher

	AllocationService *services.AllocationService
}

// NewLogger builds the process logger from the log configuration
func NewLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return logger, nil
}

// NewContainer creates an empty container
func NewContainer(cfg *config.Config, logger *logrus.Logger) *Container {
	return &Container{Config: cfg, Logger: logger}
}

// InitDatabase opens the history database when database.dsn is set
func (c *Container) InitDatabase() error {
	if c.DB != nil || c.Config.Database.DSN == "" {
		return nil
	}

	gormDB, err := db.InitDB(c.Config.Database.DSN, c.Logger)
	if err != nil {
		return err
	}

	c.DB = gormDB
	c.Reports = repository.NewReportRepository(gormDB)
	return nil
}

// InitRegistry connects to the SyrupDrip contract
func (c *Container) InitRegistry(ctx context.Context) error {
	if c.Registry != nil {
		return nil
	}
	if err := c.Config.ValidateRegistry(); err != nil {
		return err
	}

	registry, err := clients.DialSyrupDrip(ctx, c.Config.Registry.RPCURL, c.Config.Registry.SyrupDrip, c.Config.RegistryTimeout(), c.Logger)
	if err != nil {
		return err
	}

	c.Registry = registry
	return nil
}

// InitEvents connects the report publisher when nats.url is set. Events are
// optional, so a failed connection is logged and the run continues.
func (c *Container) InitEvents() {
	if c.Publisher != nil || c.Config.NATS.URL == "" {
		return
	}

	publisher, err := events.NewReportPublisher(c.Config.NATS.URL, c.Config.NATS.Subject, c.Config.NATSTimeout(), c.Logger)
	if err != nil {
		c.Logger.WithError(err).Warn("⚠️ Report events disabled")
		return
	}
	c.Publisher = publisher
}

// InitAllocationService wires registry, database and events into the
// allocation pipeline
func (c *Container) InitAllocationService(ctx context.Context) (*services.AllocationService, error) {
	if c.AllocationService != nil {
		return c.AllocationService, nil
	}

	if err := c.InitRegistry(ctx); err != nil {
		return nil, err
	}
	if err := c.InitDatabase(); err != nil {
		return nil, err
	}
	c.InitEvents()

	opts := []services.ServiceOption{services.WithServiceLogger(c.Logger)}
	if c.Reports != nil {
		opts = append(opts, services.WithReportRepository(c.Reports))
	}
	if c.Publisher != nil {
		opts = append(opts, services.WithPublisher(c.Publisher))
	}

	c.AllocationService = services.NewAllocationService(c.Config, c.Registry, opts...)
	return c.AllocationService, nil
}

// Close releases every initialized component
func (c *Container) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.Registry != nil {
		c.Registry.Close()
	}
	if c.DB != nil {
		if err := db.Close(c.DB); err != nil {
			c.Logger.WithError(err).Warn("⚠️ Failed to close database")
		}
	}
}
