package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"govpulse/internal/app"
	"govpulse/internal/config"
	"govpulse/internal/domain"
	"govpulse/internal/engine"
	"govpulse/internal/metrics"
	"govpulse/internal/repo"
	"govpulse/internal/server"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

var rootCmd = &cobra.Command{
	Use:   "gp",
	Short: "govpulse CLI",
	Long: `govpulse turns approvals, RAID items and milestones into governance signals.
- Projects carry an optional external health score; RAG is derived from the items they hold.
- Approval steps age from submission; RAID items from when they were logged; milestones from their due date.
- Items older than risk_days are amber, older than breach_days red. An explicit SLA status always wins.
- Bottlenecks rank the named people holding pending items.
- The portfolio rollup folds every project into one line, with deltas against a saved snapshot.
- Event log: every write, view with 'gp log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		logger = logger.Level(level)
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (defaults to <workspace>/govpulse.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", server.LocalActor, "actor identifier recorded on writes")
	flags.String("db-driver", "sqlite", "store driver: sqlite or postgres")
	flags.String("db-dsn", "", "postgres DSN")
	flags.String("log-level", "warn", "log level")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "db-driver", "db-dsn", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(raidCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(signalsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListProjects(ctx, repo.ProjectFilters{Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Code", "Title", "Status", "Score"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Code, p.Title, p.Status, formatScore(p.HealthScore)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var score float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("score") {
				opts.HealthScore = &score
			}
			opts.ActorID = viper.GetString("actor-id")
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Code, "code", "", "short project code")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (active, paused, closed, archived)")
	cmd.Flags().Float64Var(&score, "score", 0, "external health score 0-100")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|code>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var title, status string
	var score float64
	var clearScore bool
	cmd := &cobra.Command{
		Use:   "update <id|code>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u repo.ProjectUpdate
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("status") {
				u.Status = &status
			}
			if cmd.Flags().Changed("score") {
				u.HealthScore = &score
			}
			u.ClearScore = clearScore
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.UpdateProject(ctx, args[0], u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().Float64Var(&score, "score", 0, "external health score 0-100")
	cmd.Flags().BoolVar(&clearScore, "clear-score", false, "remove the health score")
	return cmd
}

func actorCmd() *cobra.Command {
	act := &cobra.Command{Use: "actor", Short: "Manage actors"}
	var a domain.Actor
	add := &cobra.Command{
		Use:   "add",
		Short: "Register an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.AddActor(ctx, a, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	add.Flags().StringVar(&a.ID, "id", "", "actor id (generated when empty)")
	add.Flags().StringVar(&a.DisplayName, "name", "", "display name")
	add.Flags().StringVar(&a.Email, "email", "", "email")
	list := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Email"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.DisplayName, it.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	show := &cobra.Command{
		Use:   "show <id|email>",
		Short: "Show an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.Repo.GetActor(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	act.AddCommand(add, list, show)
	return act
}

func approvalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "approval", Short: "Approval steps"}
	cmd.AddCommand(approvalSubmitCmd())
	cmd.AddCommand(approvalDecideCmd())
	cmd.AddCommand(approvalListCmd())
	return cmd
}

func approvalSubmitCmd() *cobra.Command {
	var opts engine.ApprovalOptions
	var submittedAt, dueAt string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an approval step",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.SubmittedAt, err = parseTimeFlag("submitted-at", submittedAt); err != nil {
				return err
			}
			if opts.DueAt, err = parseTimeFlag("due-at", dueAt); err != nil {
				return err
			}
			opts.ActorID = viper.GetString("actor-id")
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				step, err := ws.Engine.SubmitApproval(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(step)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "approval id (generated when empty)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id or code")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "stage name")
	cmd.Flags().StringVar(&opts.Approver, "approver", "", "approver id or email")
	cmd.Flags().StringVar(&opts.SLAStatus, "sla-status", "", "explicit SLA status (e.g. within_sla, breached)")
	cmd.Flags().StringVar(&submittedAt, "submitted-at", "", "RFC 3339 submission time (defaults to now)")
	cmd.Flags().StringVar(&dueAt, "due-at", "", "RFC 3339 due time")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func approvalDecideCmd() *cobra.Command {
	var decision, note string
	cmd := &cobra.Command{
		Use:   "decide <approval-id>",
		Short: "Decide a pending approval step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				step, err := ws.Engine.DecideApproval(ctx, args[0], decision, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(step)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approved, rejected or withdrawn")
	cmd.Flags().StringVar(&note, "note", "", "decision note")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func approvalListCmd() *cobra.Command {
	var f repo.ApprovalFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListApprovals(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func raidCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "raid", Short: "Risks, assumptions, issues, dependencies and changes"}
	var opts engine.RaidOptions
	var severity float64
	var dueAt string
	add := &cobra.Command{
		Use:   "add",
		Short: "Log a RAID item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("severity") {
				opts.Severity = &severity
			}
			var err error
			if opts.DueAt, err = parseTimeFlag("due-at", dueAt); err != nil {
				return err
			}
			opts.ActorID = viper.GetString("actor-id")
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				it, err := ws.Engine.LogRaidItem(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	add.Flags().StringVar(&opts.ID, "id", "", "item id (generated when empty)")
	add.Flags().StringVar(&opts.ProjectID, "project", "", "project id or code; empty for org-level items")
	add.Flags().StringVar(&opts.Kind, "kind", "", "risk, assumption, issue, dependency or change")
	add.Flags().StringVar(&opts.Title, "title", "", "title")
	add.Flags().StringVar(&opts.Owner, "owner", "", "owner id or email")
	add.Flags().Float64Var(&severity, "severity", 0, "severity 0-100")
	add.Flags().StringVar(&dueAt, "due-at", "", "RFC 3339 due time")
	_ = add.MarkFlagRequired("kind")
	_ = add.MarkFlagRequired("title")

	status := &cobra.Command{
		Use:   "status <raid-id> <status>",
		Short: "Move a RAID item to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				it, err := ws.Engine.SetRaidStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.AddCommand(add, status)
	return cmd
}

func milestoneCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "milestone", Short: "Milestones"}
	var opts engine.MilestoneOptions
	var dueAt string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a milestone",
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseTimeFlag("due-at", dueAt)
			if err != nil {
				return err
			}
			if due == nil {
				return fmt.Errorf("--due-at required")
			}
			opts.DueAt = *due
			opts.ActorID = viper.GetString("actor-id")
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				m, err := ws.Engine.AddMilestone(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	add.Flags().StringVar(&opts.ID, "id", "", "milestone id (generated when empty)")
	add.Flags().StringVar(&opts.ProjectID, "project", "", "project id or code")
	add.Flags().StringVar(&opts.Title, "title", "", "title")
	add.Flags().StringVar(&opts.Owner, "owner", "", "owner id or email")
	add.Flags().StringVar(&dueAt, "due-at", "", "RFC 3339 due time")
	_ = add.MarkFlagRequired("project")
	_ = add.MarkFlagRequired("title")

	status := &cobra.Command{
		Use:   "status <milestone-id> <status>",
		Short: "Move a milestone to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				m, err := ws.Engine.SetMilestoneStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.AddCommand(add, status)
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				res := map[string]any{"valid": err == nil}
				if err != nil {
					res["error"] = err.Error()
				}
				_ = printJSON(res)
			} else if err == nil {
				fmt.Println("config valid")
			}
			return err
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default govpulse.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	return cfg
}

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.LoadOrDefault(viper.GetString("workspace"))
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every write appends an event: project changes, approvals, RAID updates and milestones.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	var follow bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				// newest first from the store; print oldest first
				for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
					events[i], events[j] = events[j], events[i]
				}
				if !follow {
					if viper.GetBool("json") {
						return printJSON(events)
					}
					tw := newTable()
					tw.AppendHeader(table.Row{"ID", "TS", "Type", "Project", "Entity", "Actor"})
					for _, e := range events {
						tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ProjectID, e.EntityKind + ":" + e.EntityID, e.ActorID})
					}
					tw.Render()
					return nil
				}
				var cursor int64
				for _, e := range events {
					printEvent(e)
					cursor = e.ID
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					next, err := ws.Engine.Repo.EventsAfter(ctx, 100, cursor, f.ProjectID)
					if err != nil {
						return err
					}
					for _, e := range next {
						printEvent(e)
						cursor = e.ID
					}
				}
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new events")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval with --follow")
	return cmd
}

func printEvent(e domain.Event) {
	if viper.GetBool("json") {
		b, _ := json.Marshal(e)
		fmt.Println(string(b))
		return
	}
	fmt.Printf("%d\t%s\t%s\t%s\t%s:%s\t%s\n", e.ID, e.TS, e.Type, e.ProjectID, e.EntityKind, e.EntityID, e.ActorID)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = env.Addr
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = env.BasePath
			}
			log := logger
			if level, err := zerolog.ParseLevel(env.LogLevel); err == nil && !rootCmd.PersistentFlags().Changed("log-level") {
				log = log.Level(level)
			}
			if env.LogFormat == "json" {
				log = zerolog.New(os.Stderr).Level(log.GetLevel()).With().Timestamp().Logger()
			}
			m := metrics.New()
			ws, err := openWorkspace(cmd.Context(), log, m)
			if err != nil {
				return err
			}
			defer ws.Close()

			authCfg := server.AuthConfig{JWTSecret: env.JWTSecret, AllowLegacyActorHeader: allowLegacy}
			if authCfg.JWTSecret == "" {
				log.Warn().Msg("GOVPULSE_JWT_SECRET not set; serving in local mode without authentication")
			}
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				Insights: ws.Insights,
				Metrics:  m,
				Logger:   log,
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", addr).Str("base_path", basePath).Str("driver", string(ws.Dialect)).Msg("serving govpulse API (OpenAPI at openapi.json, Swagger UI at /docs, metrics at /metrics)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "grant read-only access to X-Actor-Id requests")
	return cmd
}

// --- helpers ---

func openWorkspace(ctx context.Context, log zerolog.Logger, m *metrics.Metrics) (*app.Workspace, error) {
	opts := app.Options{
		Workspace:  viper.GetString("workspace"),
		Driver:     viper.GetString("db-driver"),
		DSN:        viper.GetString("db-dsn"),
		ConfigPath: viper.GetString("config"),
		Logger:     log,
	}
	if m != nil {
		opts.Observer = m
	}
	return app.Open(ctx, opts)
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := openWorkspace(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseTimeFlag(name, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("--%s must be an RFC 3339 timestamp: %w", name, err)
	}
	return &t, nil
}

func formatScore(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *s)
}
