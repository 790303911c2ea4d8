package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/seeder/internal/config"
	"github.com/erp/seeder/internal/logger"
)

// annotationNoSettings marks commands that work without seeder.yaml or
// credentials.
const annotationNoSettings = "no-settings"

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	cfgFile string
	noColor bool

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "seeder",
		Short: "Seed an ERP instance with demo data that hits a revenue target",
		Long: `
Seeder synthesizes customers, suppliers, items, inventory, sales and purchase
orders whose realized revenue lands near a target, uploads them in paced
chunks through the bulk-import API and reads the aggregates back to verify.

Credentials are read from SEEDER_AUTH_USERNAME / SEEDER_AUTH_PASSWORD, a .env
file or seeder.yaml; they are never accepted on the command line.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoSettings] == "true" {
				a.log = zap.NewNop()
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "settings file (default: ./seeder.yaml)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRunCmd(a),
		newPlanCmd(a),
		newStatsCmd(a),
		newSandboxCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)

	a.cfg = cfg
	a.log = log
	return nil
}
