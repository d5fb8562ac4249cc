package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/gauntlet-ci/gauntlet/internal/errors"
	"github.com/gauntlet-ci/gauntlet/internal/sink"
	"github.com/gauntlet-ci/gauntlet/internal/util"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// timeRound is the display precision for durations in status output.
const timeRound = time.Millisecond

var statusCmd = &cobra.Command{
	Use:   "status [subject]",
	Short: "Show subject and run status",
	Long: `Display the status of registered subjects.

Without arguments, shows a one-line summary per subject. With a subject
ID, shows the full record of its latest run: stage history, per-phase
metrics, recorded errors, and persisted artifacts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// terminalWidth returns the width to wrap status output to, bounded so
// wide terminals do not produce unreadable lines.
func terminalWidth() int {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	if width > 100 {
		width = 100
	}
	return width
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(config.Get())
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return showSubjectStatus(store, args[0])
	}
	return showAllStatus(store)
}

func showAllStatus(store *sink.FileStore) error {
	subjects, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}

	if len(subjects) == 0 {
		fmt.Println("No subjects registered.")
		return nil
	}

	counts := make(map[sink.RunStatus]int)
	for _, s := range subjects {
		counts[s.Status]++
	}

	fmt.Printf("Subjects: %d", len(subjects))
	for _, status := range []sink.RunStatus{
		sink.RunStatusInProgress, sink.RunStatusCompleted,
		sink.RunStatusFailed, sink.RunStatusRegistered,
	} {
		if counts[status] > 0 {
			fmt.Printf("  %s: %d", status, counts[status])
		}
	}
	fmt.Println()
	width := terminalWidth()
	fmt.Println(strings.Repeat("-", width))

	for _, s := range subjects {
		line := fmt.Sprintf("%-24s %-12s", s.ID, s.Status)
		if !s.UpdatedAt.IsZero() {
			line += "  " + s.UpdatedAt.Format("2006-01-02 15:04:05")
		}
		if s.Reason != "" {
			line += "  " + s.Reason
		}
		fmt.Println(util.TruncateString(line, width))
	}
	return nil
}

func showSubjectStatus(store *sink.FileStore, subjectID string) error {
	subject, err := store.Resolve(subjectID)
	if err != nil {
		return err
	}

	fmt.Printf("Subject: %s\n", subject.ID)
	if subject.Repo != "" {
		fmt.Printf("Repo: %s\n", subject.Repo)
	}
	if subject.Description != "" {
		fmt.Printf("Description: %s\n", subject.Description)
	}
	fmt.Printf("Status: %s\n", subject.Status)
	if subject.Reason != "" {
		fmt.Printf("Reason: %s\n", subject.Reason)
	}
	fmt.Printf("Registered: %s\n", subject.RegisteredAt.Format("2006-01-02 15:04:05"))

	state, err := store.LoadState(subjectID)
	if err != nil {
		var notFound *errors.NotFoundError
		if errors.As(err, &notFound) {
			fmt.Println("\nNo runs recorded yet.")
			return nil
		}
		return err
	}

	divider := strings.Repeat("-", terminalWidth())

	fmt.Println(divider)
	fmt.Printf("Latest run (blueprint %s)\n", state.Blueprint)
	fmt.Printf("Stage: %s\n", state.Stage)
	fmt.Printf("Started: %s\n", state.StartedAt.Format("2006-01-02 15:04:05"))
	if !state.FinishedAt.IsZero() {
		fmt.Printf("Finished: %s (%s)\n",
			state.FinishedAt.Format("2006-01-02 15:04:05"),
			state.Elapsed().Round(timeRound))
	}

	if len(state.History) > 0 {
		fmt.Println("\nHistory:")
		for _, tr := range state.History {
			line := fmt.Sprintf("  %s  %s", tr.Timestamp.Format("15:04:05"), tr.String())
			if tr.Reason != "" {
				line += "  (" + tr.Reason + ")"
			}
			fmt.Println(line)
		}
	}

	if len(state.Metrics.PhaseDurations) > 0 {
		phases := make([]string, 0, len(state.Metrics.PhaseDurations))
		for phase := range state.Metrics.PhaseDurations {
			phases = append(phases, phase)
		}
		sort.Strings(phases)

		fmt.Println("\nPhases:")
		for _, phase := range phases {
			fmt.Printf("  %-20s %10s  %d outputs\n",
				phase,
				state.Metrics.PhaseDurations[phase].Round(timeRound),
				len(state.Results[phase]))
		}
		fmt.Printf("  %-20s %10s  %d sub-tasks, %d failed, %d retries\n",
			"total",
			state.Metrics.TotalDuration.Round(timeRound),
			state.Metrics.SubtasksRun, state.Metrics.SubtasksFailed, state.Metrics.Retries)
	}

	if len(state.Errors) > 0 {
		width := terminalWidth()
		fmt.Println("\nErrors:")
		for _, rec := range state.Errors {
			where := rec.Phase
			if rec.Subtask != "" {
				where += "/" + rec.Subtask
			}
			line := fmt.Sprintf("  %s: %s", where, rec.Message)
			if rec.Kind != "" {
				line = fmt.Sprintf("  %s (%s): %s", where, rec.Kind, rec.Message)
			}
			fmt.Println(util.TruncateString(line, width))
		}
	}

	if artifacts, err := store.ListArtifacts(subjectID); err == nil && len(artifacts) > 0 {
		fmt.Printf("\nArtifacts: %s\n", strings.Join(artifacts, ", "))
	}

	return nil
}
