package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"concept-digest-be/internal/dto"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	threshold float64
	fromURL   bool
)

var runCmd = &cobra.Command{
	Use:   "run [file|url]...",
	Short: "Process one or more articles",
	Long: `Process articles in order. Each file is one run; later files are
deduplicated against concepts committed by earlier ones.

Examples:
  digest run --user 7c1e... article.txt
  digest run --url https://example.com/post`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity threshold override (0 uses the configured one)")
	runCmd.Flags().BoolVar(&fromURL, "url", false, "Treat arguments as URLs to fetch")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	userId, err := resolveUser()
	if err != nil {
		return err
	}
	container, err := newContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var results []*dto.DigestResponse
	for _, arg := range args {
		req := &dto.DigestRequest{SourceType: "text"}
		if fromURL {
			req.URL = arg
			req.SourceType = ""
		} else {
			body, err := os.ReadFile(arg)
			if err != nil {
				return fmt.Errorf("read %s: %w", arg, err)
			}
			req.Text = string(body)
			req.Title = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
			if strings.EqualFold(filepath.Ext(arg), ".md") {
				req.SourceType = "markdown"
			}
		}
		req.Threshold = threshold

		res, err := container.DigestService.Process(ctx, userId, req)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		results = append(results, res)

		if outputFormat != "json" {
			printDigest(res)
		}
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

func printDigest(res *dto.DigestResponse) {
	color.New(color.Bold).Printf("\n%s", res.Title)
	fmt.Printf("  (run %s)\n", res.RunId)
	color.Green("new: %d", res.Stats.New)
	color.Cyan("known: %d", res.Stats.Known)
	if res.Stats.Dropped > 0 {
		color.Yellow("dropped: %d", res.Stats.Dropped)
	}
	fmt.Println()

	for _, s := range res.Sections {
		fmt.Printf("## %s\n%s\n\n", s.Title, s.Summary)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCONCEPT\tDOMAIN\tSIMILARITY\tNOTE")
	for _, c := range res.Concepts {
		note := c.Analogy
		if c.MatchedName != "" && c.MatchedName != c.Name {
			note = "matches " + c.MatchedName
		}
		if c.AnalogyMissing {
			note = "(no analogy)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", c.Status, c.Name, c.Domain, c.Similarity, truncate(note, 60))
	}
	w.Flush()

	if len(res.Questions) > 0 {
		fmt.Println("\nQuestions:")
		for i, q := range res.Questions {
			fmt.Printf("%d. %s\n", i+1, q.Question)
		}
	}
	for _, d := range res.Dropped {
		color.Yellow("dropped %s (%s): %s", d.Name, d.Reason, d.Detail)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
