package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courserag/internal/config"
	"courserag/internal/logger"
	"courserag/internal/mcpserver"
	"courserag/internal/server"
	"courserag/internal/tui"
)

var (
	cfgPath string
	cfg     *config.AppConfig
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "courserag",
		Short:         "Question answering over course materials",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			var err error
			if cfgPath == "" {
				cfg, _, err = config.LoadDefault()
			} else {
				cfg, err = config.Load(cfgPath)
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/courserag/config.yaml)")
	root.AddCommand(newServeCmd(), newIngestCmd(), newAskCmd(), newChatCmd(), newCoursesCmd(), newMCPCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Ingest the docs folder and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if dir := cfg.Server.DocsDir; dir != "" {
				if _, err := os.Stat(dir); err == nil {
					report, err := a.svc.AddCourseFolder(ctx, dir, false)
					if err != nil {
						return fmt.Errorf("load %s: %w", dir, err)
					}
					log.Info("docs loaded",
						zap.String("dir", dir),
						zap.Int("courses", report.Courses),
						zap.Int("chunks", report.Chunks),
						zap.Int("skipped", len(report.Skipped)))
				} else {
					log.Warn("docs folder not found", zap.String("dir", dir))
				}
			}

			rounds := cfg.Conversation.MaxToolRounds + 1
			srv := server.New(server.Config{
				Addr:         cfg.Server.Addr,
				CORSOrigins:  cfg.Server.CORSOrigins,
				QueryTimeout: time.Duration(cfg.Anthropic.TimeoutSecs*rounds) * time.Second,
			}, a.svc, log.Named("http"))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

func newIngestCmd() *cobra.Command {
	var clearFirst bool
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Index course documents from files, folders or globs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if clearFirst {
				if err := a.store.Clear(ctx); err != nil {
					return err
				}
			}
			report, err := a.svc.IngestPaths(ctx, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range report.Added {
				fmt.Fprintf(out, "%s (%d lessons, %d chunks)\n", c.Title, c.Lessons, c.Chunks)
				if c.Summary != "" {
					fmt.Fprintf(out, "  %s\n", c.Summary)
				}
			}
			for _, title := range report.Skipped {
				fmt.Fprintf(out, "%s already indexed, skipped\n", title)
			}
			fmt.Fprintf(out, "Added %d course(s), %d chunk(s).\n", report.Courses, report.Chunks)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "remove all indexed courses first")
	return cmd
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.Quiet(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ans, err := a.svc.Query(ctx, args[0], "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Text)
			if src := tui.RenderSources(ans.Sources); src != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, src)
			}
			return nil
		},
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.Quiet(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.svc.CourseAnalytics(ctx)
			if err != nil {
				return err
			}
			if stats.TotalCourses == 0 {
				return errors.New("no courses indexed; run `courserag ingest` first")
			}
			banner := fmt.Sprintf("%d course(s) loaded.", stats.TotalCourses)
			m := tui.New(ctx, a.svc, a.svc.CreateSession(), banner)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}

func newCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List indexed courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.Quiet(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			courses, err := a.store.AllCourses(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d course(s)\n", len(courses))
			for _, c := range courses {
				fmt.Fprintf(out, "- %s (%d lessons)", c.Title, len(c.Lessons))
				if c.Instructor != "" {
					fmt.Fprintf(out, ", %s", c.Instructor)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the course tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol, so only the file sink may log.
			log, err := logger.Quiet(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcpserver.New(a.store, log.Named("mcp"))
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
