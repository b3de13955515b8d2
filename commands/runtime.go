package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/categorize"
	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/engine/store"
	"github.com/warp/cashflow-engine/ledger"
	"github.com/warp/cashflow-engine/store/sqlstore"
)

// loadConfig reads the config file (or defaults), then applies environment
// and global flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.owner != "" {
		cfg.Preferences.Owner = flags.owner
	}
	return cfg, nil
}

// newLogger builds the process logger from the log config.
func newLogger(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

// ledgerStore is what the service and the suggester need from storage.
type ledgerStore interface {
	engine.TxStore
	engine.MappingStore
}

// openStore opens the configured store. The returned close function is
// never nil.
func openStore(cfg config.DatabaseConfig) (ledgerStore, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewTxMemory(), func() error { return nil }, nil
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		st, err := sqlstore.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// newService wires the ledger service with category suggestions on the
// same store.
func newService(st ledgerStore, logger logrus.FieldLogger) *ledger.Service {
	return ledger.New(st, logger, ledger.WithSuggester(categorize.New(st)))
}

// bootstrap is the shared startup of store-backed commands. override, when
// set, applies command flags before validation.
func bootstrap(flags *globalFlags, logOut io.Writer, override func(*config.Config)) (*config.Config, *logrus.Logger, *ledger.Service, func() error, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	st, closeFn, err := openStore(cfg.Database)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return cfg, logger, newService(st, logger), closeFn, nil
}
