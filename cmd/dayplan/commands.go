package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/dayplan/internal/config"
	"github.com/verte-zerg/dayplan/internal/ledger"
	"github.com/verte-zerg/dayplan/internal/model"
	"github.com/verte-zerg/dayplan/internal/stats"
)

var (
	historyLast     int
	historyClusters bool
	completeSeconds int
	earnCount       int
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show practice history and streaks",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLast, "last", defaultHistoryLimit, "number of records to read")
	cmd.Flags().BoolVar(&historyClusters, "clusters", false, "show per-cluster totals")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast <= 0 {
		return fmt.Errorf("--last must be > 0")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.report(context.Background(), historyLast)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderSummary(out, report); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderHistory(out, report); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if historyClusters {
		if err := stats.RenderClusters(out, report); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record lesson progress for today's plan",
	}
	start := &cobra.Command{
		Use:   "start <lesson-id>",
		Short: "Record that a lesson was started",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecordStartCmd,
	}
	complete := &cobra.Command{
		Use:   "complete <lesson-id>",
		Short: "Record that a lesson was completed",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecordCompleteCmd,
	}
	complete.Flags().IntVar(&completeSeconds, "seconds", 0, "time spent in seconds")
	cmd.AddCommand(start, complete)
	return cmd
}

func runRecordStartCmd(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	plan, err := e.planFor(cmd, args[0])
	if err != nil {
		return err
	}
	e.planner.RecordStart(plan, args[0])
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", args[0])
	return err
}

func runRecordCompleteCmd(cmd *cobra.Command, args []string) error {
	if completeSeconds < 0 {
		return fmt.Errorf("--seconds must be >= 0")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	plan, err := e.planFor(cmd, args[0])
	if err != nil {
		return err
	}
	out := e.planner.RecordComplete(context.Background(), plan, args[0], completeSeconds)
	printDiagnostics(out.Diagnostics)
	msg := fmt.Sprintf("Completed %s", args[0])
	if out.AllDone {
		msg += "; today's plan is done"
	}
	if out.Earned {
		msg += fmt.Sprintf("; earned a round (%d available)", out.Rounds.Credits)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}

// planFor returns today's plan and checks that lessonID belongs to it.
func (e *env) planFor(cmd *cobra.Command, lessonID string) (model.TodayPlan, error) {
	ctx := context.Background()
	report, err := e.report(ctx, defaultHistoryLimit)
	if err != nil {
		logErrf("failed to load history: %v\n", err)
	}
	req, err := e.request(cmd, report)
	if err != nil {
		return model.TodayPlan{}, err
	}
	res := e.planner.PlanToday(ctx, req)
	printDiagnostics(res.Diagnostics)
	for _, id := range res.Plan.LessonIDs {
		if id == lessonID {
			return res.Plan, nil
		}
	}
	return model.TodayPlan{}, fmt.Errorf("lesson %q is not in today's plan (%s)", lessonID, strings.Join(res.Plan.LessonIDs, ", "))
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <0-100> <seconds>",
		Short: "Record a scored attempt for difficulty tuning",
		Args:  cobra.ExactArgs(2),
		RunE:  runScoreCmd,
	}
}

func runScoreCmd(cmd *cobra.Command, args []string) error {
	score, err := strconv.Atoi(args[0])
	if err != nil || score < 0 || score > 100 {
		return fmt.Errorf("score must be an integer between 0 and 100")
	}
	seconds, err := strconv.ParseFloat(args[1], 64)
	if err != nil || seconds < 0 {
		return fmt.Errorf("seconds must be a non-negative number")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	snap := e.planner.RecordAttempt(context.Background(), score, seconds)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d in %.0fs; %d recent attempts, bias %+d\n",
		score, seconds, len(snap.RecentScores), snap.DifficultyBias)
	return err
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <user-id>",
		Short: "Sign in and move guest progress to the account",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoginCmd,
	}
}

func runLoginCmd(cmd *cobra.Command, args []string) error {
	userID := strings.TrimSpace(args[0])
	if userID == "" || userID == model.GuestUserID {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	// Guest state is always replayed from the anonymous session.
	planUser = ""
	if err := writeSession(""); err != nil {
		return err
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	diags := e.planner.SignIn(context.Background(), userID)
	printDiagnostics(diags)
	if err := writeSession(userID); err != nil {
		return err
	}
	if len(diags) > 0 {
		logErrln("Guest progress will be replayed again on the next login.")
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", userID)
	return err
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Return to the guest session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := writeSession(""); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return err
		},
	}
}

func newPacingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pacing <answer>",
		Short: "Record the pacing questionnaire answer",
		Args:  cobra.ExactArgs(1),
		RunE:  runPacingCmd,
	}
}

func runPacingCmd(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.RecordPacingAnswer(context.Background(), e.planner.UserID(), args[0]); err != nil {
		return fmt.Errorf("failed to record pacing answer: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Recorded pacing answer %q\n", args[0])
	return err
}

func newRoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Show or use earned rounds",
		Args:  cobra.NoArgs,
		RunE:  runRoundsShowCmd,
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show earned rounds",
		Args:  cobra.NoArgs,
		RunE:  runRoundsShowCmd,
	}
	earn := &cobra.Command{
		Use:   "earn",
		Short: "Grant earned rounds",
		Args:  cobra.NoArgs,
		RunE:  runRoundsEarnCmd,
	}
	earn.Flags().IntVar(&earnCount, "count", 1, "rounds to grant")
	spend := &cobra.Command{
		Use:   "spend",
		Short: "Spend one earned round",
		Args:  cobra.NoArgs,
		RunE:  runRoundsSpendCmd,
	}
	cmd.AddCommand(show, earn, spend)
	return cmd
}

func runRoundsShowCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	state, err := e.planner.Rounds(context.Background())
	if err != nil {
		return err
	}
	return printRounds(cmd, state)
}

func runRoundsEarnCmd(cmd *cobra.Command, _ []string) error {
	if earnCount <= 0 {
		return fmt.Errorf("--count must be > 0")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	state := e.rounds.Earn(context.Background(), e.planner.Today(), earnCount)
	return printRounds(cmd, state)
}

func runRoundsSpendCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	state, err := e.planner.SpendRound(context.Background())
	if errors.Is(err, ledger.ErrNoCredits) {
		logErrln("No earned rounds left. Complete today's plan to earn one.")
		return err
	}
	if err != nil {
		return err
	}
	return printRounds(cmd, state)
}

func printRounds(cmd *cobra.Command, state model.EarnedRoundState) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Day %s: %d available, %d used today\n", state.DayKey, state.Credits, state.UsedToday)
	return err
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit the axis profile",
		Args:  cobra.NoArgs,
		RunE:  runProfileShowCmd,
	}
	set := &cobra.Command{
		Use:   "set <axis> <score>",
		Short: "Set one axis score",
		Args:  cobra.ExactArgs(2),
		RunE:  runProfileSetCmd,
	}
	cmd.AddCommand(set)
	return cmd
}

func runProfileShowCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	profile, err := e.store.AxisProfile(context.Background(), e.planner.UserID())
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	out := cmd.OutOrStdout()
	if profile == nil {
		_, err := fmt.Fprintln(out, "No profile recorded.")
		return err
	}
	for _, axis := range model.Axes {
		score, ok := profile[axis]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(out, "%-20s %6.1f\n", axis, score); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func runProfileSetCmd(cmd *cobra.Command, args []string) error {
	axis, err := model.ParseAxis(args[0])
	if err != nil {
		return err
	}
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid score %q: %w", args[1], err)
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SetAxisScore(ctx, e.planner.UserID(), axis, score); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Set %s to %.1f\n", axis, score)
	return err
}
