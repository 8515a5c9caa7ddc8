package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openctemio/sipguard/internal/app/checks"
	"github.com/openctemio/sipguard/internal/infra/redis"
	"github.com/openctemio/sipguard/pkg/domain/incident"
)

var incidentsCmd = &cobra.Command{
	Use:     "incidents",
	Aliases: []string{"incident"},
	Short:   "Inspect and settle incidents waiting for an operator",
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open incidents",
	Args:  cobra.NoArgs,
	RunE:  runIncidentsList,
}

var incidentsGetCmd = &cobra.Command{
	Use:   "get WORKFLOW_ID",
	Short: "Show the open incident of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentsGet,
}

var incidentsSolveCmd = &cobra.Command{
	Use:   "solve WORKFLOW_ID",
	Short: "Merge a config override into the workflow and rerun the check",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentsSolve,
}

var incidentsCancelCmd = &cobra.Command{
	Use:   "cancel WORKFLOW_ID",
	Short: "Drop the incident and fail the workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runIncidentsCancel,
}

func init() {
	incidentsSolveCmd.Flags().String("override", "", "Config override document (JSON or YAML, required)")
	_ = incidentsSolveCmd.MarkFlagRequired("override")

	incidentsCancelCmd.Flags().String("reason", "", "Reason reported with the failure")

	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsCmd.AddCommand(incidentsGetCmd)
	incidentsCmd.AddCommand(incidentsSolveCmd)
	incidentsCmd.AddCommand(incidentsCancelCmd)
}

// openIncidents builds the incident service. The job client is only opened
// when withQueue is set.
func openIncidents(e *env, withQueue bool) (*checks.IncidentService, error) {
	client, err := e.redis()
	if err != nil {
		return nil, err
	}
	store, err := redis.NewIncidentStore(client, e.cfg.Cache.IncidentTTL)
	if err != nil {
		return nil, err
	}

	var enqueuer checks.Enqueuer
	if withQueue {
		jc, err := e.jobs()
		if err != nil {
			return nil, err
		}
		enqueuer = jc
	}
	return checks.NewIncidentService(store, enqueuer, e.log), nil
}

func runIncidentsList(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := openIncidents(e, false)
	if err != nil {
		return err
	}
	incidents, err := svc.List(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if done, err := render(w, flagOutput, incidents); done {
		return err
	}
	if len(incidents) == 0 {
		_, err := w.Write([]byte("No open incidents.\n"))
		return err
	}

	t := newTable(w, "WORKFLOW", "CHECK", "ISSUES", "CREATED", "MESSAGE")
	for _, inc := range incidents {
		t.AddRow(
			inc.Workflow.ExternalID,
			inc.Check,
			strconv.Itoa(len(inc.IssueIDs)),
			inc.CreatedAt.Format(time.RFC3339),
			truncate(inc.Message, 60),
		)
	}
	return t.Flush()
}

func runIncidentsGet(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := openIncidents(e, false)
	if err != nil {
		return err
	}
	inc, err := svc.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printIncident(cmd, inc)
}

func runIncidentsSolve(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("override")
	override, err := readPolicy(path)
	if err != nil {
		return err
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := openIncidents(e, true)
	if err != nil {
		return err
	}
	inc, err := svc.Solve(cmd.Context(), args[0], override)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "incident of workflow %s solved, check %s enqueued again\n", inc.Workflow.ExternalID, inc.Check)
	return nil
}

func runIncidentsCancel(cmd *cobra.Command, args []string) error {
	reason, _ := cmd.Flags().GetString("reason")

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := openIncidents(e, false)
	if err != nil {
		return err
	}
	failure, err := svc.Cancel(cmd.Context(), args[0], reason)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), failure.Error())
	return nil
}

func printIncident(cmd *cobra.Command, inc *incident.Incident) error {
	w := cmd.OutOrStdout()
	if done, err := render(w, flagOutput, inc); done {
		return err
	}

	fmt.Fprintf(w, "ID:        %s\n", inc.ID)
	fmt.Fprintf(w, "Workflow:  %s\n", inc.Workflow.ExternalID)
	fmt.Fprintf(w, "SIP:       %s (%s)\n", inc.Workflow.SIPID, inc.SIPPath)
	fmt.Fprintf(w, "Check:     %s\n", inc.Check)
	fmt.Fprintf(w, "Created:   %s\n", inc.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Message:   %s\n", inc.Message)
	fmt.Fprintf(w, "Issues:    %d\n", len(inc.IssueIDs))
	for _, id := range inc.IssueIDs {
		fmt.Fprintf(w, "  - %s\n", id)
	}
	for _, n := range inc.Nodes {
		fmt.Fprintf(w, "  node %s (%s)\n", n.Location, n.Source)
	}
	return nil
}
