package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openctemio/sipguard/internal/app/checks"
	"github.com/openctemio/sipguard/internal/infra/jobs"
	"github.com/openctemio/sipguard/pkg/domain/ingest"
	"github.com/openctemio/sipguard/pkg/domain/policy"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Schedule ingest checks and read their outcome",
}

var checkRunCmd = &cobra.Command{
	Use:   "run CHECK SIP_PATH",
	Short: "Enqueue a check for a package",
	Long: `Enqueue a check for the package at SIP_PATH.

CHECK is one of: antivirus, format_identification, fixity, missing_nodes.
The missing_nodes check reads its anomalies from --nodes, a JSON or YAML
list of {location, source} entries.`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

var checkResultCmd = &cobra.Command{
	Use:   "result TASK_ID",
	Short: "Show the outcome of an enqueued check",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckResult,
}

func init() {
	addCheckRunFlags(checkRunCmd)

	checkCmd.AddCommand(checkRunCmd)
	checkCmd.AddCommand(checkResultCmd)
}

func addCheckRunFlags(c *cobra.Command) {
	c.Flags().String("workflow", "", "Workflow external id (required)")
	c.Flags().String("sip-id", "", "Package id (required)")
	c.Flags().String("config", "", "Policy document (JSON or YAML)")
	c.Flags().String("nodes", "", "Missing node anomalies (JSON or YAML)")
	c.Flags().Duration("wait", 0, "Wait up to this long for the outcome")
	_ = c.MarkFlagRequired("workflow")
	_ = c.MarkFlagRequired("sip-id")
}

func runCheck(cmd *cobra.Command, args []string) error {
	in, err := checkInput(cmd, args)
	if err != nil {
		return err
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	client, err := e.jobs()
	if err != nil {
		return err
	}
	info, err := client.Enqueue(cmd.Context(), in)
	if err != nil {
		return err
	}

	wait, _ := cmd.Flags().GetDuration("wait")
	if wait <= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "check %s enqueued for workflow %s: task %s\n", in.Check, in.Workflow.ExternalID, info.ID)
		return nil
	}

	out, err := waitForResult(cmd, client, info.ID, wait)
	if err != nil {
		return err
	}
	return printOutput(cmd, out)
}

func checkInput(cmd *cobra.Command, args []string) (checks.Input, error) {
	kind, err := checks.ParseKind(args[0])
	if err != nil {
		return checks.Input{}, err
	}
	sipPath, err := filepath.Abs(args[1])
	if err != nil {
		return checks.Input{}, fmt.Errorf("resolve sip path: %w", err)
	}

	workflowID, _ := cmd.Flags().GetString("workflow")
	sipID, _ := cmd.Flags().GetString("sip-id")
	doc := policy.NewDocument(map[string]any{})
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		if doc, err = readPolicy(p); err != nil {
			return checks.Input{}, err
		}
	}
	wf, err := ingest.NewWorkflow(workflowID, sipID, doc)
	if err != nil {
		return checks.Input{}, err
	}

	in := checks.Input{Check: kind, Workflow: *wf, SIPPath: sipPath}
	if p, _ := cmd.Flags().GetString("nodes"); p != "" {
		if in.Nodes, err = readNodes(p); err != nil {
			return checks.Input{}, err
		}
	}
	return in, in.Validate()
}

func readPolicy(path string) (policy.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Document{}, fmt.Errorf("read policy document: %w", err)
	}
	return policy.Load(data)
}

func readNodes(path string) ([]ingest.NodeAnomaly, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}
	var nodes []ingest.NodeAnomaly
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse nodes: %w", err)
	}
	for i := range nodes {
		nodes[i].Source = policy.Stage(strings.ToUpper(string(nodes[i].Source)))
	}
	return nodes, nil
}

func waitForResult(cmd *cobra.Command, client *jobs.Client, taskID string, wait time.Duration) (*checks.Output, error) {
	ctx := cmd.Context()
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		out, err := client.Result(taskID)
		if !errors.Is(err, jobs.ErrResultPending) {
			return out, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("task %s: %w", taskID, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runCheckResult(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	client, err := e.jobs()
	if err != nil {
		return err
	}
	out, err := client.Result(args[0])
	if err != nil {
		return err
	}
	return printOutput(cmd, out)
}

func printOutput(cmd *cobra.Command, out *checks.Output) error {
	w := cmd.OutOrStdout()
	if done, err := render(w, flagOutput, out); done {
		return err
	}

	fmt.Fprintf(w, "Check:     %s\n", out.Check)
	fmt.Fprintf(w, "Workflow:  %s\n", out.WorkflowID)
	fmt.Fprintf(w, "Outcome:   %s\n", out.Outcome)
	fmt.Fprintf(w, "Duration:  %s\n", out.Duration)
	if out.Message != "" {
		fmt.Fprintf(w, "Message:   %s\n", out.Message)
	}
	if out.IncidentID != "" {
		fmt.Fprintf(w, "Incident:  %s\n", out.IncidentID)
	}
	if len(out.IssueIDs) > 0 {
		fmt.Fprintf(w, "Issues:    %s\n", strings.Join(out.IssueIDs, ", "))
	}
	return nil
}
