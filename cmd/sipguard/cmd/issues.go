package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/openctemio/sipguard/internal/app/ledger"
	"github.com/openctemio/sipguard/internal/infra/postgres"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/tool"
)

var issuesCmd = &cobra.Command{
	Use:     "issues",
	Aliases: []string{"issue"},
	Short:   "Query recorded ingest issues",
}

var issuesWorkflowCmd = &cobra.Command{
	Use:   "workflow WORKFLOW_ID",
	Short: "List issues of a workflow raised by tools of one function",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuesByWorkflow,
}

var issuesCodeCmd = &cobra.Command{
	Use:   "code CHECK_CODE",
	Short: "List issues with a check code, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuesByCode,
}

func init() {
	issuesWorkflowCmd.Flags().String("function", string(tool.FunctionVirusCheck), "Tool function")

	issuesCodeCmd.Flags().String("workflow", "", "Filter by workflow external id")
	issuesCodeCmd.Flags().Int("limit", 50, "Maximum number of issues (0 for all)")

	issuesCmd.AddCommand(issuesWorkflowCmd)
	issuesCmd.AddCommand(issuesCodeCmd)
}

func openLedger(e *env) (*ledger.Service, error) {
	db, err := e.db()
	if err != nil {
		return nil, err
	}
	return ledger.NewService(postgres.NewIssueRepository(db), e.log), nil
}

func runIssuesByWorkflow(cmd *cobra.Command, args []string) error {
	fn, _ := cmd.Flags().GetString("function")
	function, err := tool.ParseFunction(fn)
	if err != nil {
		return err
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := openLedger(e)
	if err != nil {
		return err
	}
	issues, err := svc.FindByToolAndWorkflow(cmd.Context(), function, args[0])
	if err != nil {
		return err
	}
	return printIssues(cmd, issues)
}

func runIssuesByCode(cmd *cobra.Command, args []string) error {
	code, err := issue.ParseCheckCode(args[0])
	if err != nil {
		return err
	}
	workflowID, _ := cmd.Flags().GetString("workflow")
	limit, _ := cmd.Flags().GetInt("limit")

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := openLedger(e)
	if err != nil {
		return err
	}
	issues, err := svc.FindByCheckCode(cmd.Context(), code, issue.Filter{WorkflowExternalID: workflowID, Limit: limit})
	if err != nil {
		return err
	}
	return printIssues(cmd, issues)
}

func printIssues(cmd *cobra.Command, issues []*issue.Issue) error {
	summaries := make([]issue.Summary, 0, len(issues))
	for _, is := range issues {
		summaries = append(summaries, is.Summarize())
	}

	w := cmd.OutOrStdout()
	if done, err := render(w, flagOutput, summaries); done {
		return err
	}
	if len(summaries) == 0 {
		_, err := w.Write([]byte("No issues found.\n"))
		return err
	}

	t := newTable(w, "CREATED", "WORKFLOW", "TOOL", "CODE", "FORMAT", "RESOLVED", "DESCRIPTION")
	for _, s := range summaries {
		t.AddRow(
			s.CreatedAt.Format(time.RFC3339),
			s.WorkflowExternalID,
			s.Tool.Name,
			string(s.CheckCode),
			s.FormatPUID,
			boolToStr(s.ResolvedByPolicy),
			truncate(s.Description, 60),
		)
	}
	return t.Flush()
}
