package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a user's learning statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if inMemory {
		return fmt.Errorf("stats needs a database; an in-memory store is empty at startup")
	}
	userId, err := resolveUser()
	if err != nil {
		return err
	}
	container, err := newContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	stats, err := container.ConceptService.Stats(context.Background(), userId)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Concepts: %d\nArticles: %d\n", stats.TotalConcepts, stats.TotalArticles)
	if len(stats.RecentConcepts) > 0 {
		fmt.Println("\nRecently learned:")
		for _, name := range stats.RecentConcepts {
			fmt.Printf("  - %s\n", name)
		}
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tCONCEPTS")
	for _, d := range stats.Domains {
		fmt.Fprintf(w, "%s\t%d\n", d.Domain, d.Count)
	}
	return w.Flush()
}
