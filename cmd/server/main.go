package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yukikurage/annotation-api/internal/config"
	"github.com/yukikurage/annotation-api/internal/database"
	"github.com/yukikurage/annotation-api/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "annotation-api",
	Short:         "Multi-annotator image labeling service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, createUserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, sets up logging and opens the database.
// Every command starts with it.
func bootstrap() (*config.Config, io.Closer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	closer, err := logging.Setup(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := database.Connect(cfg); err != nil {
		closer.Close()
		return nil, nil, err
	}

	return cfg, closer, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, closer, err := bootstrap()
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := database.Migrate(); err != nil {
			return err
		}
		log.Info("schema is up to date")
		return nil
	},
}
