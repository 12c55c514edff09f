package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"govpulse/internal/app"
	"govpulse/internal/fetch"
	"govpulse/internal/insights"
	"govpulse/internal/signal"
	govpulsesdk "govpulse/sdk/go"
)

// signalFlags are shared by every signals subcommand.
type signalFlags struct {
	riskDays    int
	breachDays  int
	windowDays  int
	scope       string
	includeIdle bool
	prior       string
	save        string
	remote      string
	token       string
}

func (f *signalFlags) bind(cmd *cobra.Command) {
	fl := cmd.PersistentFlags()
	fl.IntVar(&f.riskDays, "risk-days", 0, "override the at-risk age threshold")
	fl.IntVar(&f.breachDays, "breach-days", 0, "override the breach age threshold")
	fl.IntVar(&f.windowDays, "window-days", 0, "override the due-soon window")
	fl.StringVar(&f.scope, "scope", "", "project scope: active or all")
	fl.BoolVar(&f.includeIdle, "include-idle", true, "show projects with nothing pending")
	fl.StringVar(&f.prior, "prior", "", "portfolio snapshot JSON to compute deltas against")
	fl.StringVar(&f.save, "save", "", "write the portfolio snapshot JSON to this file")
	fl.StringVar(&f.remote, "remote", "", "read from a govpulse API instead of the local workspace")
	fl.StringVar(&f.token, "token", "", "bearer token for --remote")
	_ = viper.BindPFlag("remote", fl.Lookup("remote"))
	_ = viper.BindPFlag("token", fl.Lookup("token"))
}

func (f *signalFlags) options(cmd *cobra.Command) (insights.Options, error) {
	opts := insights.Options{ScopeMode: f.scope}
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("risk-days") {
		v := f.riskDays
		opts.RiskDays = &v
	}
	if changed("breach-days") {
		v := f.breachDays
		opts.BreachDays = &v
	}
	if changed("window-days") {
		v := f.windowDays
		opts.WindowDays = &v
	}
	if changed("include-idle") {
		v := f.includeIdle
		opts.IncludeIdle = &v
	}
	if f.prior != "" {
		prior, err := readSnapshot(f.prior)
		if err != nil {
			return opts, err
		}
		opts.Prior = &prior
	}
	return opts, nil
}

func readSnapshot(path string) (signal.PortfolioRollup, error) {
	var p signal.PortfolioRollup
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read prior snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse prior snapshot %s: %w", path, err)
	}
	return p, nil
}

func writeSnapshot(path string, p signal.PortfolioRollup) error {
	p.Prior, p.Deltas = nil, nil
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// build produces a report from the local workspace or, with --remote, from
// a running API.
func (f *signalFlags) build(cmd *cobra.Command) (insights.Report, error) {
	opts, err := f.options(cmd)
	if err != nil {
		return insights.Report{}, err
	}
	ctx := cmd.Context()
	var report insights.Report
	if remote := viper.GetString("remote"); remote != "" {
		report, err = remoteReport(ctx, remote, viper.GetString("token"), opts)
	} else {
		err = withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
			var berr error
			report, berr = ws.Insights.Build(ctx, opts)
			return berr
		})
	}
	if errors.Is(err, fetch.ErrStarved) {
		for name, msg := range report.Errors {
			logger.Error().Str("source", name).Msg(msg)
		}
		return report, err
	}
	if err != nil {
		return report, err
	}
	for name, msg := range report.Errors {
		logger.Warn().Str("source", name).Msg("partial report: " + msg)
	}
	if f.save != "" {
		if err := writeSnapshot(f.save, report.Portfolio); err != nil {
			return report, err
		}
	}
	return report, nil
}

func remoteReport(ctx context.Context, baseURL, token string, opts insights.Options) (insights.Report, error) {
	c := govpulsesdk.New(baseURL)
	c.BearerToken = token
	q := govpulsesdk.Query{
		Scope:       opts.ScopeMode,
		RiskDays:    opts.RiskDays,
		BreachDays:  opts.BreachDays,
		WindowDays:  opts.WindowDays,
		IncludeIdle: opts.IncludeIdle,
	}
	report, err := c.Report(ctx, q)
	if err != nil {
		var apiErr *govpulsesdk.APIError
		if errors.As(err, &apiErr) && apiErr.Starved() {
			report.Errors = map[string]string{}
			for name, msg := range apiErr.Details {
				report.Errors[name] = fmt.Sprint(msg)
			}
			return report, fetch.ErrStarved
		}
		return report, err
	}
	if opts.Prior != nil {
		pf, err := c.ComparePortfolio(ctx, q, *opts.Prior)
		if err != nil {
			return report, err
		}
		report.Portfolio = pf.Portfolio
		report.Narrative = pf.Narrative
	}
	return report, nil
}

func signalsCmd() *cobra.Command {
	f := &signalFlags{}
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Governance signals",
		Long:  "Project health, bottlenecks and the portfolio rollup, derived from every readable source.",
	}
	f.bind(cmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "projects",
		Short: "Project health rows, worst first",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := f.build(cmd)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r.Projects)
			}
			renderProjects(r.Projects)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "bottlenecks",
		Short: "People holding pending items, busiest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := f.build(cmd)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r.Bottlenecks)
			}
			renderBottlenecks(r.Bottlenecks)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "portfolio",
		Short: "Portfolio rollup and narrative",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := f.build(cmd)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"portfolio": r.Portfolio, "narrative": r.Narrative, "disagreements": r.Disagreements})
			}
			renderPortfolio(r)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Every surface at once",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := f.build(cmd)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r)
			}
			renderProjects(r.Projects)
			renderBottlenecks(r.Bottlenecks)
			renderPortfolio(r)
			renderSources(r.Sources)
			return nil
		},
	})
	return cmd
}

func ragColor(r signal.RAG) text.Colors {
	switch r {
	case signal.RAGRed:
		return text.Colors{text.FgRed, text.Bold}
	case signal.RAGAmber:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgGreen}
	}
}

func renderProjects(rows []signal.ProjectRow) {
	tw := newTable()
	tw.SetTitle("Projects")
	tw.AppendHeader(table.Row{"Project", "RAG", "Breached", "At risk", "OK", "Due soon", "Max age", "Score", "Held by", "Stage"})
	for _, row := range rows {
		name := row.Title
		if row.Code != "" {
			name = row.Code + " " + name
		}
		tw.AppendRow(table.Row{
			name,
			ragColor(row.RAG).Sprint(strings.ToUpper(string(row.RAG))),
			row.Counts.Breached, row.Counts.AtRisk, row.Counts.OK,
			row.DueSoon,
			fmt.Sprintf("%dd", row.MaxAgeDays),
			formatScore(row.Score),
			row.DominantActor, row.DominantStage,
		})
	}
	tw.Render()
}

func renderBottlenecks(rows []signal.BottleneckRow) {
	tw := newTable()
	tw.SetTitle("Bottlenecks")
	tw.AppendHeader(table.Row{"Actor", "Pending", "Projects", "Avg wait", "Max wait", "Heat"})
	for _, row := range rows {
		tw.AppendRow(table.Row{row.ActorLabel, row.PendingCount, row.ProjectsAffected, fmt.Sprintf("%.1fd", row.AvgWaitDays), fmt.Sprintf("%dd", row.MaxWaitDays), row.Heat})
	}
	tw.Render()
}

func renderPortfolio(r insights.Report) {
	p := r.Portfolio
	tw := newTable()
	tw.SetTitle("Portfolio")
	tw.AppendHeader(table.Row{"Metric", "Value", "Change"})
	change := func(d func(*signal.Deltas) signal.Delta) string {
		if p.Deltas == nil {
			return ""
		}
		delta := d(p.Deltas)
		return fmt.Sprintf("%s %+g", delta.Direction, delta.Value)
	}
	tw.AppendRows([]table.Row{
		{"Projects", p.ProjectCount, change(func(d *signal.Deltas) signal.Delta { return d.ProjectCount })},
		{"Blocked (red)", p.BlockedProjectCount, change(func(d *signal.Deltas) signal.Delta { return d.BlockedProjectCount })},
		{"Breached items", p.BreachedTotal, change(func(d *signal.Deltas) signal.Delta { return d.BreachedTotal })},
		{"At-risk items", p.AtRiskTotal, change(func(d *signal.Deltas) signal.Delta { return d.AtRiskTotal })},
		{"Due soon", p.DueSoonTotal, change(func(d *signal.Deltas) signal.Delta { return d.DueSoonTotal })},
		{"Avg score", fmt.Sprintf("%.1f", p.ScoreAverage), change(func(d *signal.Deltas) signal.Delta { return d.ScoreAverage })},
	})
	tw.Render()
	for _, line := range r.Narrative {
		fmt.Println(line)
	}
	for _, d := range r.Disagreements {
		fmt.Printf("note: %s scores %.0f but is %s\n", d.ProjectID, d.Score, strings.ToUpper(string(d.RAG)))
	}
}

func renderSources(sources []insights.SourceStatus) {
	tw := newTable()
	tw.SetTitle("Sources")
	tw.AppendHeader(table.Row{"Source", "Kind", "Primary", "OK", "Records", "ms", "Error"})
	for _, s := range sources {
		tw.AppendRow(table.Row{s.Name, s.Kind, s.Primary, s.OK, s.Records, s.DurationMS, s.Error})
	}
	tw.Render()
}
