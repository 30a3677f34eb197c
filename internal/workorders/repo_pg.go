package workorders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const workOrderColumns = `id, order_id, asset_id, asset_name, checklist_id, section_title, description, priority, status,
       recurrence_count, assignee_name, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// FindIssuesByAsset returns issues reported on the asset at or after since, newest first.
func (r *PGRepo) FindIssuesByAsset(ctx context.Context, assetID string, since time.Time) ([]Issue, error) {
	const query = `
SELECT id, asset_id, checklist_id, description, notes, status, section_title, reported_at, work_order_id, consolidated_into
FROM issues
WHERE asset_id = $1 AND reported_at >= $2
ORDER BY reported_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, assetID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Issue
	for rows.Next() {
		var issue Issue
		var checklistID, notes, section, workOrderID, consolidatedInto sql.NullString
		var status string
		if err := rows.Scan(
			&issue.ID,
			&issue.AssetID,
			&checklistID,
			&issue.Description,
			&notes,
			&status,
			&section,
			&issue.ReportedAt,
			&workOrderID,
			&consolidatedInto,
		); err != nil {
			return nil, err
		}
		issue.Status = IssueStatus(status)
		issue.ChecklistID = checklistID.String
		issue.Notes = notes.String
		issue.SectionTitle = section.String
		issue.WorkOrderID = workOrderID.String
		issue.ConsolidatedInto = consolidatedInto.String
		out = append(out, issue)
	}
	return out, rows.Err()
}

// FindWorkOrdersByAsset returns the asset's work orders, most recently updated first.
func (r *PGRepo) FindWorkOrdersByAsset(ctx context.Context, assetID string) ([]WorkOrder, error) {
	query := `
SELECT ` + workOrderColumns + `
FROM work_orders
WHERE asset_id = $1
ORDER BY updated_at DESC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wo)
	}
	return out, rows.Err()
}

// GetWorkOrder returns a work order by ID.
func (r *PGRepo) GetWorkOrder(ctx context.Context, workOrderID string) (WorkOrder, error) {
	query := `
SELECT ` + workOrderColumns + `
FROM work_orders
WHERE id = $1
LIMIT 1`
	wo, err := scanWorkOrder(r.DB.QueryRowContext(ctx, query, workOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WorkOrder{}, ErrNotFound
		}
		return WorkOrder{}, err
	}
	return wo, nil
}

// CreateWorkOrder inserts the work order and its originating issue in one transaction.
func (r *PGRepo) CreateWorkOrder(ctx context.Context, wo WorkOrder, origin Issue) (WorkOrder, error) {
	if wo.Status == "" {
		wo.Status = StatusOpen
	}
	if wo.RecurrenceCount == 0 {
		wo.RecurrenceCount = 1
	}
	if wo.UpdatedAt.IsZero() {
		wo.UpdatedAt = wo.CreatedAt
	}
	if err := wo.Validate(); err != nil {
		return WorkOrder{}, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return WorkOrder{}, err
	}
	defer tx.Rollback()

	if wo.OrderID == "" {
		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT nextval('work_order_seq')`).Scan(&seq); err != nil {
			return WorkOrder{}, fmt.Errorf("next order id: %w", mapPGError(err))
		}
		wo.OrderID = FormatOrderID(seq)
	}
	wo.Version = 1

	const insertWorkOrder = `
INSERT INTO work_orders (
    id, order_id, asset_id, asset_name, checklist_id, section_title, description, priority, status,
    recurrence_count, assignee_name, version, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := tx.ExecContext(ctx, insertWorkOrder,
		wo.ID,
		wo.OrderID,
		wo.AssetID,
		nullString(wo.AssetName),
		nullString(wo.ChecklistID),
		nullString(wo.SectionTitle),
		wo.Description,
		string(wo.Priority),
		wo.Status,
		wo.RecurrenceCount,
		nullString(wo.AssigneeName),
		wo.Version,
		wo.CreatedAt,
		wo.UpdatedAt,
	); err != nil {
		return WorkOrder{}, fmt.Errorf("insert work order: %w", mapPGError(err))
	}

	if origin.ID != "" {
		origin.WorkOrderID = wo.ID
		if err := insertIssue(ctx, tx, origin); err != nil {
			return WorkOrder{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return WorkOrder{}, mapPGError(err)
	}
	return wo, nil
}

// AppendAndIncrement applies a consolidation guarded by the version column.
func (r *PGRepo) AppendAndIncrement(ctx context.Context, c Consolidation) (WorkOrder, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return WorkOrder{}, err
	}
	defer tx.Rollback()

	query := `
UPDATE work_orders
SET description = description || $1,
    recurrence_count = recurrence_count + 1,
    priority = CASE WHEN $2::boolean THEN 'Alta' ELSE priority END,
    updated_at = $3,
    version = version + 1
WHERE id = $4 AND version = $5
RETURNING ` + workOrderColumns
	wo, err := scanWorkOrder(tx.QueryRowContext(ctx, query, c.Note, c.Escalate, c.At, c.WorkOrderID, c.ExpectedVersion))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM work_orders WHERE id = $1)`, c.WorkOrderID).Scan(&exists); err != nil {
				return WorkOrder{}, mapPGError(err)
			}
			if !exists {
				return WorkOrder{}, ErrNotFound
			}
			return WorkOrder{}, ErrConflict
		}
		return WorkOrder{}, fmt.Errorf("update work order: %w", mapPGError(err))
	}

	if c.Issue.ID != "" {
		issue := c.Issue
		issue.WorkOrderID = wo.ID
		issue.ConsolidatedInto = wo.ID
		if err := insertIssue(ctx, tx, issue); err != nil {
			return WorkOrder{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return WorkOrder{}, mapPGError(err)
	}
	return wo, nil
}

func insertIssue(ctx context.Context, tx *sql.Tx, issue Issue) error {
	const query = `
INSERT INTO issues (
    id, asset_id, checklist_id, description, notes, status, section_title, reported_at, work_order_id, consolidated_into
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.ExecContext(ctx, query,
		issue.ID,
		issue.AssetID,
		nullString(issue.ChecklistID),
		issue.Description,
		nullString(issue.Notes),
		string(issue.Status),
		nullString(issue.SectionTitle),
		issue.ReportedAt,
		nullString(issue.WorkOrderID),
		nullString(issue.ConsolidatedInto),
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", mapPGError(err))
	}
	return nil
}

func scanWorkOrder(row rowScanner) (WorkOrder, error) {
	var wo WorkOrder
	var assetName, checklistID, section, assignee sql.NullString
	var priority string
	if err := row.Scan(
		&wo.ID,
		&wo.OrderID,
		&wo.AssetID,
		&assetName,
		&checklistID,
		&section,
		&wo.Description,
		&priority,
		&wo.Status,
		&wo.RecurrenceCount,
		&assignee,
		&wo.Version,
		&wo.CreatedAt,
		&wo.UpdatedAt,
	); err != nil {
		return WorkOrder{}, err
	}
	wo.Priority = Priority(priority)
	wo.AssetName = assetName.String
	wo.ChecklistID = checklistID.String
	wo.SectionTitle = section.String
	wo.AssigneeName = assignee.String
	if err := wo.Validate(); err != nil {
		return WorkOrder{}, fmt.Errorf("invalid stored work order: %w", err)
	}
	return wo, nil
}

// mapPGError turns serialization and deadlock failures into ErrConflict.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s (%s)", ErrDuplicate, pgErr.Message, pgErr.ConstraintName)
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
