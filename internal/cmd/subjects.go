package cmd

import (
	"fmt"

	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/gauntlet-ci/gauntlet/internal/sink"
	"github.com/spf13/cobra"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "Manage registered subjects",
	Long: `Manage the subjects registered for pipeline runs.

Without arguments, lists all registered subjects.`,
	RunE: runSubjectsList,
}

var subjectsAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a subject",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubjectsAdd,
}

var subjectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered subjects",
	RunE:  runSubjectsList,
}

var subjectsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a subject and its run state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubjectsRemove,
}

var (
	subjectRepo        string
	subjectDescription string
)

func init() {
	rootCmd.AddCommand(subjectsCmd)
	subjectsCmd.AddCommand(subjectsAddCmd)
	subjectsCmd.AddCommand(subjectsListCmd)
	subjectsCmd.AddCommand(subjectsRemoveCmd)

	subjectsAddCmd.Flags().StringVar(&subjectRepo, "repo", "", "repository path or URL the subject refers to")
	subjectsAddCmd.Flags().StringVar(&subjectDescription, "description", "", "free-form description")
}

func runSubjectsAdd(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(config.Get())
	if err != nil {
		return err
	}

	subject := sink.Subject{
		ID:          args[0],
		Repo:        subjectRepo,
		Description: subjectDescription,
	}
	if err := store.Add(subject); err != nil {
		return fmt.Errorf("failed to register subject: %w", err)
	}

	fmt.Printf("Registered subject %s\n", subject.ID)
	return nil
}

func runSubjectsList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(config.Get())
	if err != nil {
		return err
	}

	subjects, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}

	if len(subjects) == 0 {
		fmt.Println("No subjects registered. Use 'gauntlet subjects add <id>' to register one.")
		return nil
	}

	fmt.Printf("%-24s %-12s %s\n", "SUBJECT", "STATUS", "REPO")
	for _, s := range subjects {
		fmt.Printf("%-24s %-12s %s\n", s.ID, s.Status, s.Repo)
	}
	return nil
}

func runSubjectsRemove(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(config.Get())
	if err != nil {
		return err
	}

	if err := store.Remove(args[0]); err != nil {
		return fmt.Errorf("failed to remove subject: %w", err)
	}

	fmt.Printf("Removed subject %s\n", args[0])
	return nil
}
