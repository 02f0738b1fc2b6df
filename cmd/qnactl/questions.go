package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garnizeh/qna/internal/ai"
	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/internal/lifecycle"
	"github.com/garnizeh/qna/internal/triggers"
	"github.com/garnizeh/qna/pkg/models"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [question-id]",
	Short: "Recompute the derived status of a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runReconcile,
}

var lockCmd = &cobra.Command{
	Use:   "lock [question-id]",
	Short: "Lock a question against further writes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuestionAction(cmd, args[0], func(svc *lifecycle.Service, qid string) (*models.Question, error) {
			return svc.Lock(cmd.Context(), auth.System, qid)
		})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock [question-id]",
	Short: "Lift a lock and recompute the status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuestionAction(cmd, args[0], func(svc *lifecycle.Service, qid string) (*models.Question, error) {
			return svc.Unlock(cmd.Context(), auth.System, qid)
		})
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft [question-id]",
	Short: "Print the draft the generator would produce",
	Long:  `Renders the drafting prompt and calls the configured collaborator without storing anything.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDraft,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(draftCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	return runQuestionAction(cmd, args[0], func(svc *lifecycle.Service, qid string) (*models.Question, error) {
		return svc.Reconcile(cmd.Context(), qid)
	})
}

// runQuestionAction applies action through the lifecycle service and prints
// the resulting question.
func runQuestionAction(cmd *cobra.Command, qid string, action func(*lifecycle.Service, string) (*models.Question, error)) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	q, err := action(lifecycle.NewService(e.repo, e.logger), qid)
	if err != nil {
		return err
	}
	return printJSON(cmd, q)
}

func runDraft(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	ai.SetLogger(e.logger)
	collab, closeCollab, err := ai.NewCollaborator(e.cfg)
	if err != nil {
		return err
	}
	defer closeCollab()

	drafter := ai.NewDrafter(e.cfg.Drafting, collab, e.repo)
	svc := lifecycle.NewService(e.repo, e.logger)
	d, err := triggers.NewDraftTrigger(e.repo, svc, drafter, e.cfg.Drafting.HistoryLimit, e.logger).Preview(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, d)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
