// Package main provides the CLI entrypoint for dayplan.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/dayplan/internal/planner"
	"github.com/verte-zerg/dayplan/internal/stats"
	"github.com/verte-zerg/dayplan/internal/tui"
)

const (
	defaultLang         = "en"
	defaultWorld        = "core"
	defaultHistoryLimit = 60
	defaultDeepLessons  = 2
	defaultCurveWindow  = 3
)

var (
	planUser    string
	planWorld   string
	planMode    string
	planTag     string
	planEnergy  string
	planMinutes float64
	planPlain   bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dayplan",
		Short:         "Adaptive daily session planner",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE:          runPlanCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&planUser, "user", "", "user id (default: signed-in user or guest)")
	flags.StringVar(&planWorld, "world", defaultWorld, "world id")
	flags.StringVar(&planMode, "mode", "", "requested mode: short or deep (default: auto)")
	flags.StringVar(&planTag, "tag", "", "context tag for prompt matching")
	flags.StringVar(&planEnergy, "energy", "", "energy level: low, normal or high")
	flags.Float64Var(&planMinutes, "minutes", 0, "minutes available today")
	rootCmd.Flags().BoolVar(&planPlain, "plain", false, "print the plan instead of opening the TUI")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newPacingCmd())
	rootCmd.AddCommand(newRoundsCmd())
	rootCmd.AddCommand(newProfileCmd())

	return rootCmd
}

func runPlanCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	report, err := e.report(ctx, defaultHistoryLimit)
	if err != nil {
		logErrf("failed to load history: %v\n", err)
	}
	req, err := e.request(cmd, report)
	if err != nil {
		return err
	}

	if planPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		res := e.planner.PlanToday(ctx, req)
		return printPlan(cmd.OutOrStdout(), res)
	}

	history := func(ctx context.Context) (stats.Report, error) {
		e.planner.Writer().Flush()
		return e.report(ctx, defaultHistoryLimit)
	}
	model := tui.NewModel(e.planner, req, history)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func printPlan(w io.Writer, res planner.Result) error {
	plan := res.Plan
	state := "built"
	if res.Reused {
		state = "reused"
	}
	lines := []string{
		fmt.Sprintf("Day:        %s (%s, run %s)", plan.DayKey, state, plan.RunID),
		fmt.Sprintf("World:      %s", plan.WorldID),
		fmt.Sprintf("Cluster:    %s", plan.Cluster),
		fmt.Sprintf("Mode:       %s", plan.Mode),
		fmt.Sprintf("Difficulty: %s", plan.Difficulty),
	}
	if plan.Variant != "" {
		lines = append(lines, fmt.Sprintf("Variant:    %s", plan.Variant))
	}
	for i, lesson := range res.Lessons {
		lines = append(lines, fmt.Sprintf("Lesson %d:   %s  %s (%s, %d min)", i+1, lesson.ID, lesson.Title, lesson.Difficulty, lesson.Minutes))
	}
	if len(res.Lessons) == 0 {
		lines = append(lines, "Lessons:    none available")
	}
	if res.Prompts.Primary != nil {
		lines = append(lines, fmt.Sprintf("Prompt:     %s", res.Prompts.Primary.Text))
	}
	if res.Prompts.Secondary != nil {
		lines = append(lines, fmt.Sprintf("Also:       %s", res.Prompts.Secondary.Text))
	}
	lines = append(lines, fmt.Sprintf("Reason:     %s", plan.Reason))
	if plan.FallbackReason != "" {
		lines = append(lines, fmt.Sprintf("Fallback:   %s", plan.FallbackReason))
	}
	if _, err := fmt.Fprintln(w, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	printDiagnostics(res.Diagnostics)
	return nil
}

func printDiagnostics(diags []planner.Diagnostic) {
	for _, d := range diags {
		logErrf("warning: %s\n", d)
	}
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# dayplan configuration
# Uncomment a value to enable it. CLI flags override config values.

[planner]
# lang = %q               # Content language
# world = %q            # World id used in the plan identity
# history-limit = %d        # Practice records read per plan
# deep-lessons = %d          # Lessons in a deep plan

[policy]
# min-minutes-for-deep = 10.0       # Below this, deep becomes short
# max-deep-abandon-rate = 0.5       # Above this, deep becomes short
# max-overall-abandon-rate = 0.6    # Above this, the soft variant applies
# enable-soft-variant = true
# low-energy-downgrade = true
# enable-challenge-variant = false

[store]
# db-path = ""              # SQLite path (default: XDG data dir)
# plan-store = "sqlite"     # sqlite, redis or memory
# redis-addr = "localhost:6379"
# plan-ttl = "36h"          # Redis plan lifetime

[catalog]
# path = ""                 # YAML catalog (default: embedded)

[log]
# mode = "dev"              # dev or prod
`,
		defaultLang,
		defaultWorld,
		defaultHistoryLimit,
		defaultDeepLessons,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
