package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/arthur-debert/nanoprefs/nanoprefs"
	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
)

const envPrefix = "NANOPREFS"

// cli holds the state shared by every command of one invocation.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
	logger *zap.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "nanoprefs",
		Short: "Inspect and edit a persisted preference store",
		Long: `nanoprefs reads and writes the raw key-value content of a preference store.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (NANOPREFS_*)
3. Configuration file (--config, NANOPREFS_CONFIG or ./nanoprefs.yaml)

Examples:
  nanoprefs --path prefs.json dump
  nanoprefs --path prefs.json set favorite_color BLUE
  nanoprefs --path prefs.json set --kind string_set tags RED BLUE
  NANOPREFS_BACKEND=sqlite NANOPREFS_PATH=prefs.db nanoprefs get launch_count`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("config", "", "configuration file")
	flags.StringP("backend", "b", "file", "store backend: file|sqlite|redis")
	flags.StringP("path", "p", "", "store file, sqlite database or redis address")
	flags.String("table", "", "sqlite table or redis hash (default \"preferences\")")
	flags.String("redis-password", "", "redis password")
	flags.Int("redis-db", 0, "redis database number")
	flags.BoolP("verbose", "v", false, "log store activity")
	flags.Bool("no-color", false, "disable colors")
	_ = c.v.BindPFlags(flags)

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		newDumpCmd(c),
		newGetCmd(c),
		newSetCmd(c),
		newRemoveCmd(c),
		newClearCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	if file := c.v.GetString("config"); file != "" {
		c.v.SetConfigFile(file)
	} else {
		c.v.SetConfigName("nanoprefs")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home + "/.config/nanoprefs")
		}
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return newConfigError("read configuration", err.Error())
		}
	}

	if c.v.GetBool("no-color") {
		color.NoColor = true
	}

	logger := zap.NewNop()
	if c.v.GetBool("verbose") {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}
	c.logger = logger
	return nil
}

// openStore opens the configured backend as a deferred store. Callers must
// Close it to persist their edits.
func (c *cli) openStore(operation string) (*nanoprefs.Store, *storage.Deferred, error) {
	driver, err := c.openDriver(operation)
	if err != nil {
		return nil, nil, err
	}
	backend, err := storage.NewDeferred(driver, storage.WithLogger(c.logger))
	if err != nil {
		_ = driver.Close()
		return nil, nil, wrapError(operation, err)
	}
	c.logger.Debug("store opened",
		zap.String("backend", c.v.GetString("backend")),
		zap.String("path", c.v.GetString("path")))
	return nanoprefs.New(backend, nanoprefs.WithLogger(c.logger)), backend, nil
}

func (c *cli) openDriver(operation string) (storage.Driver, error) {
	path := c.v.GetString("path")
	if path == "" {
		return nil, newConfigError(operation, "no store location", "Pass --path or set "+envPrefix+"_PATH")
	}
	table := c.v.GetString("table")

	switch backend := c.v.GetString("backend"); backend {
	case "file":
		return storage.NewFile(path), nil
	case "sqlite":
		db, err := storage.OpenSQLite(path, table)
		if err != nil {
			return nil, wrapError(operation, err)
		}
		return db, nil
	case "redis":
		r, err := storage.OpenRedis(storage.RedisConfig{
			Addr:     path,
			Password: c.v.GetString("redis-password"),
			DB:       c.v.GetInt("redis-db"),
			Hash:     table,
		})
		if err != nil {
			return nil, wrapError(operation, err)
		}
		return r, nil
	default:
		return nil, newConfigError(operation, fmt.Sprintf("unknown backend %q", backend), suggestConfig)
	}
}
