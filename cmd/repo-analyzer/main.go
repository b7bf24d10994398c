package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/spf13/cobra"

	"github.com/kevinmichaelchen/repo-analyzer/internal/config"
	"github.com/kevinmichaelchen/repo-analyzer/internal/models"
	"github.com/kevinmichaelchen/repo-analyzer/internal/server"
	"github.com/kevinmichaelchen/repo-analyzer/internal/surrealdb"
)

func main() {
	root := &cobra.Command{
		Use:   "repo-analyzer",
		Short: "GitHub repository and contributor analysis with AI summaries",
	}

	root.AddCommand(analyzeCmd(), contributionsCmd(), treeCmd(), serveCmd(), schemaCmd(), cacheCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func splitRepo(arg string) (string, string, error) {
	owner, name, ok := strings.Cut(arg, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("expected owner/name, got %q", arg)
	}
	return owner, name, nil
}

type outputFlags struct {
	json bool
	toon bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&o.toon, "toon", false, "Print the full result as Toon")
}

// print writes res in the requested machine format and reports whether it
// did so.
func (o *outputFlags) print(res *models.AnalysisResult) (bool, error) {
	switch {
	case o.json:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return true, enc.Encode(res)
	case o.toon:
		output, err := gotoon.Encode(res)
		if err != nil {
			return true, fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return true, nil
	}
	return false, nil
}

func analyzeCmd() *cobra.Command {
	var username string
	var out outputFlags

	cmd := &cobra.Command{
		Use:   "analyze owner/name",
		Short: "Classify a repository and summarize a contributor's work on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := splitRepo(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.Analyze(ctx, owner, name, username)
			if err != nil {
				return err
			}
			if done, err := out.print(res); done || err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "GitHub login whose contributions to summarize")
	out.register(cmd)
	return cmd
}

func contributionsCmd() *cobra.Command {
	var out outputFlags

	cmd := &cobra.Command{
		Use:   "contributions owner/name username",
		Short: "Summarize one user's contributions to a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := splitRepo(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.AnalyzeContributions(ctx, owner, name, args[1])
			if err != nil {
				return err
			}
			if done, err := out.print(res); done || err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
	out.register(cmd)
	return cmd
}

func printResult(res *models.AnalysisResult) {
	fmt.Printf("%s\n", res.Repository.FullName())
	if res.IsEmpty {
		fmt.Println("Repository is empty, nothing to analyze")
		return
	}
	if res.Description != nil {
		fmt.Printf("  %s (%s)\n", *res.Description, res.DescriptionSource)
	}

	if pa := res.ProjectAnalysis; pa != nil {
		fmt.Printf("\nType:       %s\n", pa.ProjectType)
		fmt.Printf("Complexity: %d/10\n", pa.ComplexityScore)
		if len(pa.Technologies) > 0 {
			names := make([]string, 0, len(pa.Technologies))
			for _, t := range pa.Technologies {
				names = append(names, fmt.Sprintf("%s (%.0f%%)", t.Name, t.Confidence*100))
			}
			fmt.Printf("Stack:      %s\n", strings.Join(names, ", "))
		}
		for _, f := range pa.KeyFeatures {
			fmt.Printf("  - %s\n", f)
		}
		if res.Cached {
			fmt.Println("  (cached)")
		}
	} else if res.ProjectAnalysisError != nil {
		fmt.Printf("\nWARN: project analysis unavailable: %s\n", res.ProjectAnalysisError.Message)
	}

	if c := res.Contributions; c != nil {
		t := c.Totals
		fmt.Printf("\n%s: %d commits (+%d/-%d), %d PRs, %d issues\n",
			c.Contributor.Login, t.TotalCommits, t.TotalAdditions, t.TotalDeletions, t.PRCount, t.IssueCount)
		if c.Share != nil && c.Share.Commits != nil {
			fmt.Printf("  %.1f%% of repository commits\n", *c.Share.Commits)
		}
	}
	if s := res.ContributionSummary; s != nil {
		fmt.Printf("Relationship: %s\n", s.Relationship)
		fmt.Printf("  %s\n", s.SummaryText)
		if len(s.PrimaryAreas) > 0 {
			fmt.Printf("  Areas: %s\n", strings.Join(s.PrimaryAreas, ", "))
		}
	} else if res.ContributionError != nil {
		fmt.Printf("WARN: contributions unavailable: %s\n", res.ContributionError.Message)
	}
}

func treeCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "tree owner/name",
		Short: "List a directory of a repository's default branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := splitRepo(args[0])
			if err != nil {
				return err
			}
			gh := newGitHub(config.Load())
			entries, err := gh.FetchDirectoryTree(cmd.Context(), owner, name, path)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.Type == "tree" {
					fmt.Printf("%s/\n", e.Path)
				} else {
					fmt.Println(e.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Directory path (default: root)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := config.Load()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.New(cfg.ListenAddr, server.NewRouter(a.gh, a.svc, cfg.CORSOrigins, a.logger), a.logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Initialize/update the SurrealDB cache schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			if !cfg.CacheEnabled() {
				return fmt.Errorf("SURREAL_URL is not set")
			}

			db, err := surrealdb.NewAnalysisCache(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(ctx) }()

			if err := db.InitSchema(ctx); err != nil {
				return err
			}
			fmt.Println("Schema initialized")
			return nil
		},
	}
}

func cacheCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show cached analysis counts, optionally purging expired entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			if !cfg.CacheEnabled() {
				return fmt.Errorf("SURREAL_URL is not set")
			}

			db, err := surrealdb.NewAnalysisCache(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(ctx) }()

			if purge {
				if err := db.Purge(ctx); err != nil {
					return err
				}
				fmt.Println("Purged expired entries")
			}

			stats, err := db.GetStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Cached:  %d\n", stats.Total)
			fmt.Printf("Live:    %d\n", stats.Live)
			fmt.Printf("Expired: %d\n", stats.Expired)
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete expired entries first")
	return cmd
}
