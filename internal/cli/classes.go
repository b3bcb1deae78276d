package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var classesCmd = &cobra.Command{
	Use:     "classes",
	Aliases: []string{"ls"},
	Short:   "List the classes you have joined",
	Args:    cobra.NoArgs,
	RunE:    withApp(runClasses),
}

var joinCmd = &cobra.Command{
	Use:   "join <classId>",
	Short: "Join a class by its code",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runJoin),
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments <classId>",
	Short: "List the assignments of a class",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runAssignments),
}

var assignmentCmd = &cobra.Command{
	Use:   "assignment <assignmentId>",
	Short: "Show an assignment and its questions",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runAssignment),
}

func init() {
	rootCmd.AddCommand(classesCmd, joinCmd, assignmentsCmd, assignmentCmd)
}

func runClasses(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/classes"); err != nil {
		return err
	}
	classes, err := a.api.JoinedClasses(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, classes, func() error {
		if len(classes) == 0 {
			fmt.Fprintln(out, "You have not joined any class yet. Use `hwdesk join <classId>`.")
			return nil
		}
		rows := make([][]string, 0, len(classes))
		for _, c := range classes {
			rows = append(rows, []string{c.ClassID, c.ClassName, c.CourseName, orDash(c.TeacherName), strconv.Itoa(c.StudentCount)})
		}
		return printTable(out, []string{"CLASS", "NAME", "COURSE", "TEACHER", "STUDENTS"}, rows)
	})
}

func runJoin(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/classes"); err != nil {
		return err
	}
	class, err := a.api.JoinClass(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, class, func() error {
		fmt.Fprintf(out, "Joined %s (%s)\n", class.ClassName, class.ClassID)
		return nil
	})
}

func runAssignments(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/assignments/"+args[0]); err != nil {
		return err
	}
	items, err := a.api.ClassAssignments(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, items, func() error {
		if len(items) == 0 {
			fmt.Fprintln(out, "No assignments yet")
			return nil
		}
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{it.AssignmentID, it.Title, orDash(it.Deadline), orDash(it.Status)})
		}
		return printTable(out, []string{"ASSIGNMENT", "TITLE", "DEADLINE", "STATUS"}, rows)
	})
}

func runAssignment(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.enter(ctx, "/assignment/"+args[0]); err != nil {
		return err
	}
	item, err := a.api.AssignmentDetail(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return render(out, item, func() error {
		fmt.Fprintf(out, "%s  %s\n", item.AssignmentID, item.Title)
		if item.Description != "" {
			fmt.Fprintln(out, item.Description)
		}
		fmt.Fprintf(out, "Deadline: %s\n", orDash(item.Deadline))
		for i, q := range item.Questions {
			labels := make([]string, 0, len(q.Labels))
			for _, l := range q.Labels {
				labels = append(labels, l.Name)
			}
			fmt.Fprintf(out, "\n%d. [%s] %s (%s, %s)\n", i+1, q.QuestionID, q.Title, orDash(q.Type), orDash(q.Difficulty))
			if len(labels) > 0 {
				fmt.Fprintf(out, "   labels: %s\n", strings.Join(labels, ", "))
			}
			if q.Content != "" {
				fmt.Fprintf(out, "   %s\n", q.Content)
			}
		}
		return nil
	})
}
