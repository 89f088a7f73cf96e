// Package cli implements the tk command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agency-tracker/internal/config"
	"agency-tracker/internal/db"
	"agency-tracker/internal/logging"
	"agency-tracker/pkg/datastore"
	"agency-tracker/pkg/tracker"
)

// openStore is replaced in tests.
var openStore = db.OpenAndMigrate

// app carries what a command needs once configuration is resolved.
type app struct {
	v       *viper.Viper
	cfgFile string
	jsonOut bool
	actor   string

	cfg      config.Config
	log      zerolog.Logger
	closeLog func()
	store    datastore.Store
	tracker  *tracker.Tracker
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New(), closeLog: func() {}}

	root := &cobra.Command{
		Use:   "tk",
		Short: "Agency project tracker",
		Long: `tk inspects and updates the agency project tracker from a terminal.

Examples:
  tk migrate                          Create the schema
  tk report                           Risk report for every client
  tk followups                        Overdue and stale tasks to chase
  tk task status T-1 BLOCKED --reason "waiting on client"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.BoolVar(&a.jsonOut, "json", false, "output as JSON")
	pf.StringVar(&a.actor, "as", "", "team user id to act as")
	pf.String("driver", "", "database driver: postgres, sqlite or memory")
	pf.String("database-url", "", "postgres URL or sqlite path")
	pf.String("log-level", "", "log level")
	_ = a.v.BindPFlag("database.driver", pf.Lookup("driver"))
	_ = a.v.BindPFlag("database.url", pf.Lookup("database-url"))
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	a.v.SetDefault("log.level", "warn")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newSyncCmd(a))
	root.AddCommand(newFollowUpsCmd(a))
	root.AddCommand(newReportCmd(a))
	root.AddCommand(newTaskCmd(a))
	return root
}

func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log, a.closeLog, err = logging.New(cfg.Log.Level, cfg.Log.File, cfg.Log.Pretty)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.store, err = openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	a.tracker = tracker.New(a.store, a.log)
	return nil
}

// run wraps a command body so the store is closed however it returns.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close store")
		}
		a.store = nil
	}
	a.closeLog()
}

func (a *app) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
