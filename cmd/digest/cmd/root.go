package cmd

import (
	"fmt"

	"concept-digest-be/internal/bootstrap"
	"concept-digest-be/internal/config"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/database"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	// userID is the user whose concept store is read and written
	userID string
	// inMemory skips Postgres; concepts live only for this invocation
	inMemory bool
	// outputFormat is the output format (table, json)
	outputFormat string
	verbose      bool
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "digest",
	Short: "Turn articles into personalized concept notes",
	Long: `digest runs the concept pipeline from the command line.

Examples:
  # Process two articles against the user's stored concepts
  digest run --user 7c1e... notes/raft.txt notes/paxos.md

  # Try it without a database; the second file is deduplicated against the first
  digest run --memory a.txt b.txt

  # Show what the user has learned so far
  digest stats --user 7c1e...

  # Print completed runs published on NATS
  digest watch`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id (a random one is used with --memory)")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "memory", false, "Keep concepts in memory instead of Postgres")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func resolveUser() (uuid.UUID, error) {
	if userID == "" {
		if inMemory {
			return uuid.New(), nil
		}
		return uuid.Nil, fmt.Errorf("--user is required unless --memory is set")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --user: %w", err)
	}
	return id, nil
}

func newContainer() (*bootstrap.Container, error) {
	cfg := config.Load()
	var sysLogger logger.ILogger = logger.NewNopLogger()
	if verbose {
		sysLogger = logger.NewConsoleLogger(true)
	}

	var db *gorm.DB
	if inMemory {
		cfg.Store.Backend = "memory"
	} else {
		var err error
		db, err = database.NewGormDBFromDSN(cfg.Database.Connection, verbose)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
	}

	container, err := bootstrap.NewContainer(db, cfg, sysLogger)
	if err != nil {
		return nil, err
	}
	return container, nil
}
