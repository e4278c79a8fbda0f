package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/prospect/hunt"
)

var (
	configPath string
	serverAddr string
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "prospect",
	Short: "Autonomous GitHub repository discovery",
	Long: `prospect runs research missions against the GitHub search API:
each cycle picks a search tactic, fans the results through a durable
task queue, scores candidates against the mission goal, and feeds the
yield back into tactic weights and acceptance thresholds. Feedback on
findings steers the next strategy evolution.

The daemon (prospect run) owns the database; every other command talks
to its HTTP API.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", env("PROSPECT_CONFIG", "prospect.yml"), "config file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", env("PROSPECT_ADDR", "http://localhost:8130"), "daemon address")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "output JSON")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(missionsCmd())
	rootCmd.AddCommand(findingsCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(evolveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// --- daemon ---

func runCmd() *cobra.Command {
	var mcpStdio bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the discovery daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := hunt.LoadConfig(configPath)
			if err != nil {
				return err
			}

			svc, err := hunt.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           svc.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			go func() {
				logger.Info("api listening", "addr", cfg.ListenAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("api server", "error", err)
					cancel()
				}
			}()

			if mcpStdio {
				mcpSrv := mcp.NewServer(&mcp.Implementation{
					Name:    "prospect",
					Version: "1.0.0",
				}, nil)
				svc.RegisterMCP(mcpSrv)
				go func() {
					if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
						logger.Error("mcp server", "error", err)
					}
				}()
			}

			err = svc.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Error("api shutdown", "error", serr)
			}
			if err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info("stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&mcpStdio, "mcp-stdio", false, "also serve MCP tools on stdio")
	return cmd
}

func newLogger() *slog.Logger {
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// --- client commands ---

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st hunt.Status
			if err := apiGet(cmd.Context(), "/api/status", &st); err != nil {
				return err
			}
			if asJSON {
				return printJSON(st)
			}
			fmt.Printf("missions: %d  findings: %d\n", st.Missions, st.Findings)
			fmt.Printf("rate limit: %d remaining", st.RateLimit.Remaining)
			if st.RateLimit.ResetEpoch > 0 {
				fmt.Printf("  (resets %s)", time.Unix(st.RateLimit.ResetEpoch, 0).Format(time.Kitchen))
			}
			fmt.Println()

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Queue", "Count"})
			for status, n := range st.Queue {
				tw.AppendRow(table.Row{status, n})
			}
			tw.Render()

			tw = table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Tactic", "Weight"})
			for name, w := range st.Weights {
				tw.AppendRow(table.Row{name, fmt.Sprintf("%.2f", w)})
			}
			tw.Render()
			return nil
		},
	}
}

func missionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "missions", Short: "Manage missions"}
	cmd.AddCommand(missionsListCmd())
	cmd.AddCommand(missionsAddCmd())
	cmd.AddCommand(missionsInitCmd())
	return cmd
}

func missionsInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Bootstrap a mission's strategy from its seed repositories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]string
			if err := apiPost(cmd.Context(), "/api/missions/"+args[0]+"/init", map[string]string{}, &out); err != nil {
				return err
			}
			fmt.Println("mission initialized:", args[0])
			return nil
		},
	}
}

func missionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var missions []*hunt.Mission
			if err := apiGet(cmd.Context(), "/api/missions", &missions); err != nil {
				return err
			}
			if asJSON {
				return printJSON(missions)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Name", "Goal", "Min Stars", "Enabled", "Strategy"})
			for _, m := range missions {
				strategy := "default"
				if m.StrategyJSON != "" && m.StrategyJSON != "{}" {
					strategy = "learned"
				}
				tw.AppendRow(table.Row{m.Name, truncate(m.Goal, 48), m.MinStars, m.Enabled, strategy})
			}
			tw.Render()
			return nil
		},
	}
}

func missionsAddCmd() *cobra.Command {
	var goal string
	var languages []string
	var minStars int
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := hunt.Mission{
				Name:      args[0],
				Goal:      goal,
				Languages: languages,
				MinStars:  minStars,
			}
			var out hunt.Mission
			if err := apiPost(cmd.Context(), "/api/missions", m, &out); err != nil {
				return err
			}
			fmt.Println("mission saved:", out.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "research goal")
	cmd.Flags().StringSliceVar(&languages, "language", nil, "language filter (repeatable)")
	cmd.Flags().IntVar(&minStars, "min-stars", 0, "minimum stars")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func findingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "findings", Short: "Browse and rate findings"}
	cmd.AddCommand(findingsListCmd())
	cmd.AddCommand(findingsSearchCmd())
	cmd.AddCommand(feedbackCmd("like", "liked"))
	cmd.AddCommand(feedbackCmd("dislike", "disliked"))
	return cmd
}

func findingsListCmd() *cobra.Command {
	var mission, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List findings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := fmt.Sprintf("/api/findings?mission=%s&status=%s&limit=%d", mission, status, limit)
			var findings []*hunt.Finding
			if err := apiGet(cmd.Context(), path, &findings); err != nil {
				return err
			}
			return printFindings(findings)
		},
	}
	cmd.Flags().StringVar(&mission, "mission", "", "mission filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, liked, disliked, archived)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func findingsSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/findings/search?q=%s&limit=%d", args[0], limit)
			var findings []*hunt.Finding
			if err := apiGet(cmd.Context(), path, &findings); err != nil {
				return err
			}
			return printFindings(findings)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func feedbackCmd(use, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <finding-id>",
		Short: "Mark a finding " + status,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/findings/" + args[0] + "/feedback"
			var out map[string]string
			if err := apiPost(cmd.Context(), path, map[string]string{"status": status}, &out); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", args[0], status)
			return nil
		},
	}
}

func printFindings(findings []*hunt.Finding) error {
	if asJSON {
		return printJSON(findings)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Repository", "Stars", "Lang", "Score", "Status"})
	for _, f := range findings {
		score := "-"
		if f.Score != nil {
			score = fmt.Sprintf("%.2f", *f.Score)
		}
		tw.AppendRow(table.Row{f.ID, f.Title, f.Stars, f.Language, score, f.Status})
	}
	tw.Render()
	return nil
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <mission>",
		Short: "Show a mission's analytics report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r hunt.Report
			if err := apiGet(cmd.Context(), "/api/report?mission="+args[0], &r); err != nil {
				return err
			}
			if asJSON {
				return printJSON(r)
			}
			fmt.Printf("mission: %s  found: %d  accepted: %d  rejected: %d (%.0f%%)\n",
				r.Mission, r.TotalFound, r.TotalAccepted, r.TotalRejected, r.RejectedShare*100)

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Tactic", "Cycles", "Found", "Accepted", "Mean Success"})
			for _, y := range r.Tactics {
				tw.AppendRow(table.Row{y.Tactic, y.Cycles, y.Found, y.Accepted, fmt.Sprintf("%.2f", y.MeanSuccess)})
			}
			tw.Render()

			if len(r.TopFindings) > 0 {
				fmt.Println("top findings:")
				_ = printFindings(r.TopFindings)
			}
			return nil
		},
	}
}

func evolveCmd() *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "evolve <mission>",
		Short: "Force a strategy evolution (or roll back the last one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"mission": args[0]}
			if rollback {
				var prior hunt.Strategy
				if err := apiPost(cmd.Context(), "/api/evolve/rollback", body, &prior); err != nil {
					return err
				}
				fmt.Println("rolled back to strategy", prior.ID)
				return nil
			}
			var out map[string]string
			if err := apiPost(cmd.Context(), "/api/evolve", body, &out); err != nil {
				return err
			}
			fmt.Println("strategy evolved for", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "restore the previous strategy")
	return cmd
}

// --- HTTP client plumbing ---

func apiGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverAddr+path, nil)
	if err != nil {
		return err
	}
	return apiDo(req, out)
}

func apiPost(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverAddr+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return apiDo(req, out)
}

func apiDo(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running at %s? %w", serverAddr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
