package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kingrea/proteoflow/internal/config"
	"github.com/kingrea/proteoflow/internal/module"
	"github.com/kingrea/proteoflow/internal/reports"
	"github.com/kingrea/proteoflow/internal/search"
	"github.com/kingrea/proteoflow/internal/stages"
	"github.com/kingrea/proteoflow/internal/tui"
)

var (
	resume      bool
	useTUI      bool
	stageList   []string
	catalogFile string
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an annotated proteoflow.yaml (never overwrites)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		created, err := config.WriteTemplate(path)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s; fill in the required fields before running\n", path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists; left untouched\n", path)
		}
		return nil
	},
}

var decoyCmd = &cobra.Command{
	Use:   "decoy",
	Short: "Generate the concatenated target/decoy database",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()
		ctx, stop := signalContext()
		defer stop()

		cfg := env.cfg.WithOverrides(nil)
		cfg.Decoy = config.DecoyAlways
		sc, err := search.New(ctx, cfg,
			search.WithRunner(env.runner),
			search.WithLogger(env.log.Logger),
			search.WithManifest(env.recorder),
		)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sc.DatabasePath())
		return nil
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Derive the identification parameter file",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()
		ctx, stop := signalContext()
		defer stop()

		sc, err := search.New(ctx, env.cfg,
			search.WithRunner(env.runner),
			search.WithLogger(env.log.Logger),
			search.WithManifest(env.recorder),
		)
		if err != nil {
			return err
		}
		set, err := sc.DeriveParameters(ctx, env.defaults, nil)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		values := set.Map()
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "%-24s %s\n", key, values[key])
		}
		fmt.Fprintf(out, "\nwrote %s\n", set.OutPath())
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Prepare the database and parameters, then run SearchCLI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, []string{stages.SearchID}, nil)
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Build the PeptideShaker project from the search archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, []string{stages.ConsolidateID}, nil)
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports [selectors...]",
	Short: "Export reports by catalog index or name",
	Long: `Exports PeptideShaker reports from the consolidated project. Selectors
are catalog indices ("0") or report names ("Extended PSM Report").
Unknown selectors are reported and skipped. Without selectors the
config's reports list, or the catalog defaults, are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, []string{stages.ReportsID}, args)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		if useTUI {
			return runTUI(cmd)
		}
		return runStages(cmd, stageList, nil)
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the PeptideShaker reports that can be exported",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := reports.Default()
		if catalogFile != "" {
			var err error
			if catalog, err = reports.LoadCatalog(catalogFile); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderCatalog(catalog))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&resume, "resume", false, "Skip stages whose outputs are already present")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "Show stage progress in a terminal UI")
	runCmd.Flags().StringSliceVar(&stageList, "stages", nil, "Run only these stages, in this order")
	catalogCmd.Flags().StringVar(&catalogFile, "file", "", "Report catalog YAML (default: PeptideShaker 1.16)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runStages(cmd *cobra.Command, ids []string, selectors []string) error {
	env, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	defer env.Close()
	ctx, stop := signalContext()
	defer stop()

	session := env.session(selectors)
	p, err := env.pipeline(ctx, session, ids, stages.WithResume(resume))
	if err != nil {
		return err
	}
	outcomes, runErr := p.Run()
	printOutcomes(cmd.OutOrStdout(), outcomes)
	if res := session.LastReports(); res != nil && runErr == nil {
		for _, name := range res.Files {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
	}
	return runErr
}

func runTUI(cmd *cobra.Command) error {
	env, err := openEnv(envOptions{quiet: true})
	if err != nil {
		return err
	}
	defer env.Close()
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := env.pipeline(ctx, env.session(nil), stageList, stages.WithResume(resume))
	if err != nil {
		return err
	}
	app := tui.NewApp("proteoflow · "+env.cfg.Experiment, p, tui.WithCancel(cancel))
	if _, err := tea.NewProgram(app, tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout())).Run(); err != nil && app.Err() == nil && !app.Aborted() {
		return fmt.Errorf("tui: %w", err)
	}
	if app.Aborted() {
		return fmt.Errorf("run aborted")
	}
	return app.Err()
}

var (
	okBadge   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	skipBadge = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	failBadge = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	dimText   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	titleText = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
)

func printOutcomes(w io.Writer, outcomes []stages.Outcome) {
	for _, o := range outcomes {
		badge := okBadge
		switch o.Result.Status {
		case module.StatusSkipped:
			badge = skipBadge
		case module.StatusFailed:
			badge = failBadge
		}
		fmt.Fprintf(w, "%s %s %s\n", badge.Render(fmt.Sprintf("%-9s", o.Result.Status)), o.Stage.Name, dimText.Render(o.Result.Message))
	}
}

func renderCatalog(c *reports.Catalog) string {
	defaults := map[string]bool{}
	for _, sel := range c.DefaultSelectors() {
		defaults[sel] = true
	}
	var rows []string
	rows = append(rows, titleText.Render(c.Label()+" reports"))
	for _, e := range c.Entries {
		mark := " "
		if defaults[fmt.Sprint(e.Index)] {
			mark = okBadge.Render("*")
		}
		rows = append(rows, fmt.Sprintf("%s %3d  %s", mark, e.Index, e.Name))
	}
	rows = append(rows, dimText.Render("* exported when no selectors are given"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(strings.Join(rows, "\n"))
}
