package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/openctemio/sipguard/pkg/domain/format"
	"github.com/openctemio/sipguard/pkg/domain/issue"
	"github.com/openctemio/sipguard/pkg/domain/shared"
	"github.com/openctemio/sipguard/pkg/domain/tool"
)

const issueColumns = `id, workflow_external_id, tool_name, tool_version, tool_function,
	check_code, format_puid, format_name, description, resolved_by_policy, config_note, created_at`

const insertIssueQuery = `
	INSERT INTO ingest_issues (` + issueColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// IssueRepository persists ingest issues. Rows are only ever inserted.
type IssueRepository struct {
	db *DB
}

// NewIssueRepository creates a new IssueRepository.
func NewIssueRepository(db *DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Save inserts a single issue.
func (r *IssueRepository) Save(ctx context.Context, is *issue.Issue) error {
	return insertIssue(ctx, r.db, is)
}

// SaveAll inserts all issues in one transaction.
func (r *IssueRepository) SaveAll(ctx context.Context, issues []*issue.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, is := range issues {
			if err := insertIssue(ctx, tx, is); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertIssue(ctx context.Context, ex execer, is *issue.Issue) error {
	_, err := ex.ExecContext(ctx, insertIssueQuery, issueArgs(is)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: issue %s", shared.ErrAlreadyExists, is.ID())
		}
		return fmt.Errorf("failed to save issue: %w", err)
	}
	return nil
}

func issueArgs(is *issue.Issue) []any {
	var puid, name string
	if f := is.Format(); f != nil {
		puid, name = f.PUID, f.Name
	}
	t := is.Tool()
	return []any{
		is.ID().String(),
		is.WorkflowExternalID(),
		t.Name,
		nullString(t.Version),
		string(t.Function),
		string(is.CheckCode()),
		nullString(puid),
		nullString(name),
		is.Description(),
		is.ResolvedByPolicy(),
		nullString(is.ConfigNote()),
		is.CreatedAt(),
	}
}

// FindByToolAndWorkflow returns the issues raised by tools of one function for one workflow.
func (r *IssueRepository) FindByToolAndWorkflow(ctx context.Context, function tool.Function, workflowExternalID string) ([]*issue.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM ingest_issues
		WHERE tool_function = $1 AND workflow_external_id = $2
		ORDER BY created_at ASC, id ASC`
	return r.query(ctx, query, string(function), workflowExternalID)
}

// FindByCheckCode returns the issues with a check code, newest first.
func (r *IssueRepository) FindByCheckCode(ctx context.Context, code issue.CheckCode, filter issue.Filter) ([]*issue.Issue, error) {
	query, args := buildCheckCodeQuery(code, filter)
	return r.query(ctx, query, args...)
}

func buildCheckCodeQuery(code issue.CheckCode, filter issue.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + issueColumns + ` FROM ingest_issues WHERE check_code = $1`)
	args := []any{string(code)}

	if filter.WorkflowExternalID != "" {
		args = append(args, filter.WorkflowExternalID)
		fmt.Fprintf(&b, " AND workflow_external_id = $%d", len(args))
	}
	b.WriteString(" ORDER BY created_at DESC, id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (r *IssueRepository) query(ctx context.Context, query string, args ...any) ([]*issue.Issue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []*issue.Issue
	for rows.Next() {
		var row issueRow
		if err := rows.Scan(
			&row.id, &row.workflowExternalID, &row.toolName, &row.toolVersion, &row.toolFunction,
			&row.checkCode, &row.formatPUID, &row.formatName, &row.description,
			&row.resolvedByPolicy, &row.configNote, &row.createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, row.toIssue())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issues: %w", err)
	}
	return issues, nil
}

type issueRow struct {
	id                 shared.ID
	workflowExternalID string
	toolName           string
	toolVersion        sql.NullString
	toolFunction       string
	checkCode          string
	formatPUID         sql.NullString
	formatName         sql.NullString
	description        string
	resolvedByPolicy   bool
	configNote         sql.NullString
	createdAt          sql.NullTime
}

func (row issueRow) toIssue() *issue.Issue {
	var def *format.Definition
	if puid := nullStringValue(row.formatPUID); puid != "" {
		def = &format.Definition{PUID: puid, Name: nullStringValue(row.formatName)}
	}
	return issue.Reconstitute(issue.Data{
		ID:                 row.id,
		WorkflowExternalID: row.workflowExternalID,
		Tool: tool.Ref{
			Name:     row.toolName,
			Version:  nullStringValue(row.toolVersion),
			Function: tool.Function(row.toolFunction),
		},
		CheckCode:        issue.CheckCode(row.checkCode),
		Format:           def,
		Description:      row.description,
		ResolvedByPolicy: row.resolvedByPolicy,
		ConfigNote:       nullStringValue(row.configNote),
		CreatedAt:        row.createdAt.Time,
	})
}
