package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/hwdesk/pkg/api"
	"github.com/harun/hwdesk/pkg/gateway"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <questionId> <file>...",
	Short: "Upload answer files for a question",
	Args:  cobra.MinimumNArgs(2),
	RunE:  withApp(runSubmit),
}

var askCmd = &cobra.Command{
	Use:   "ask <questionId> <text>...",
	Short: "Ask the teacher about a question",
	Args:  cobra.MinimumNArgs(2),
	RunE:  withApp(runAsk),
}

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "List your submissions",
	Args:  cobra.NoArgs,
	RunE:  withApp(runSubmissions),
}

var submissionCmd = &cobra.Command{
	Use:   "submission <submissionId>",
	Short: "Show a submission with its score and inquiries",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runSubmission),
}

var submissionAskCmd = &cobra.Command{
	Use:   "ask <submissionId> <text>...",
	Short: "Ask about the grading of a submission",
	Args:  cobra.MinimumNArgs(2),
	RunE:  withApp(runSubmissionAsk),
}

func init() {
	submissionCmd.AddCommand(submissionAskCmd)
	rootCmd.AddCommand(submitCmd, askCmd, submissionsCmd, submissionCmd)
}

func runSubmit(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/submissions"); err != nil {
		return err
	}

	files := make([]gateway.File, 0, len(args)-1)
	for _, path := range args[1:] {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		files = append(files, gateway.File{Name: filepath.Base(path), Reader: f})
	}

	sub, err := a.api.SubmitAnswer(ctx, args[0], files)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, sub, func() error {
		fmt.Fprintf(out, "Submitted %d file(s) as %s\n", len(sub.Files), sub.SubmissionID)
		return nil
	})
}

func runAsk(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/classes"); err != nil {
		return err
	}
	inq, err := a.api.AskQuestion(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	return printInquiry(cmd, inq)
}

func runSubmissions(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/submissions"); err != nil {
		return err
	}
	subs, err := a.api.Submissions(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, subs, func() error {
		if len(subs) == 0 {
			fmt.Fprintln(out, "No submissions yet")
			return nil
		}
		rows := make([][]string, 0, len(subs))
		for _, s := range subs {
			rows = append(rows, []string{s.SubmissionID, s.AssignmentTitle, s.QuestionID, orDash(s.SubmitTime), orDash(s.Status), score(s)})
		}
		return printTable(out, []string{"SUBMISSION", "ASSIGNMENT", "QUESTION", "SUBMITTED", "STATUS", "SCORE"}, rows)
	})
}

func runSubmission(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/submission/"+args[0]); err != nil {
		return err
	}
	sub, err := a.api.SubmissionDetail(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, sub, func() error {
		fmt.Fprintf(out, "%s  %s / %s\n", sub.SubmissionID, sub.AssignmentTitle, sub.QuestionID)
		fmt.Fprintf(out, "Submitted: %s  Status: %s  Score: %s\n", orDash(sub.SubmitTime), orDash(sub.Status), score(sub))
		for _, f := range sub.Files {
			fmt.Fprintf(out, "  file: %s (%d bytes)\n", f.Name, f.Size)
		}
		if sub.Feedback != "" {
			fmt.Fprintf(out, "Feedback: %s\n", sub.Feedback)
		}
		for _, q := range sub.Inquiries {
			fmt.Fprintf(out, "Q: %s\n", q.Content)
			if q.Reply != "" {
				fmt.Fprintf(out, "A: %s\n", q.Reply)
			}
		}
		return nil
	})
}

func runSubmissionAsk(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/submission/"+args[0]); err != nil {
		return err
	}
	inq, err := a.api.AddSubmissionQuestion(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	return printInquiry(cmd, inq)
}

func printInquiry(cmd *cobra.Command, inq api.Inquiry) error {
	out := cmd.OutOrStdout()
	return render(out, inq, func() error {
		fmt.Fprintf(out, "Question %s sent\n", inq.InquiryID)
		return nil
	})
}

func score(s api.Submission) string {
	if s.Score == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *s.Score)
}
