package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/faculty-records-api/internal/models"
)

const recordColumns = "id, record_type, employee_id, title, details, status, rejection_reason, academic_year, attachment_ref, reviewed_by, reviewed_at, created_at, updated_at"

// RecordRepository persists faculty records of every type in one table.
type RecordRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewRecordRepository creates a new instance of RecordRepository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new record. Status defaults to Pending.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.StatusPending
	}
	if len(record.Details) == 0 {
		record.Details = []byte("{}")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt

	const query = `INSERT INTO records (id, record_type, employee_id, title, details, status, rejection_reason, academic_year, attachment_ref, created_at, updated_at)
VALUES (:id, :record_type, :employee_id, :title, :details, :status, :rejection_reason, :academic_year, :attachment_ref, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// GetByID returns a record of the given type. Missing rows surface as sql.ErrNoRows.
func (r *RecordRepository) GetByID(ctx context.Context, recordType models.RecordType, id string) (*models.Record, error) {
	query, args, err := r.sb.Select(recordColumns).
		From("records").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"record_type": recordType}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get record query: %w", err)
	}
	var record models.Record
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &record, nil
}

// List returns every record matching the filter, newest first.
func (r *RecordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, error) {
	if filter.Restricted && len(filter.EmployeeIDs) == 0 {
		return []models.Record{}, nil
	}
	query, args, err := applyRecordFilter(r.sb.Select(recordColumns).From("records"), filter).
		OrderBy("created_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list records query: %w", err)
	}
	records := make([]models.Record, 0)
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Count returns how many records match the filter.
func (r *RecordRepository) Count(ctx context.Context, filter models.RecordFilter) (int, error) {
	if filter.Restricted && len(filter.EmployeeIDs) == 0 {
		return 0, nil
	}
	query, args, err := applyRecordFilter(r.sb.Select("COUNT(*)").From("records"), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count records query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return total, nil
}

// UpdateStatus applies a terminal transition only while the record is still Pending.
// When no row qualifies it returns sql.ErrNoRows.
func (r *RecordRepository) UpdateStatus(ctx context.Context, update models.StatusUpdate) error {
	const query = `UPDATE records SET status = :status, rejection_reason = :rejection_reason, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :reviewed_at
WHERE id = :id AND record_type = :record_type AND status = 'Pending'`
	res, err := r.db.NamedExecContext(ctx, query, update)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func applyRecordFilter(b squirrel.SelectBuilder, filter models.RecordFilter) squirrel.SelectBuilder {
	if filter.Type != "" {
		b = b.Where(squirrel.Eq{"record_type": filter.Type})
	}
	if filter.Status != nil {
		b = b.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.AcademicYear != "" {
		b = b.Where(squirrel.Eq{"academic_year": filter.AcademicYear})
	}
	if filter.EventType != "" {
		b = b.Where("details->>'eventType' = ?", filter.EventType)
	}
	if filter.Restricted {
		b = b.Where(squirrel.Eq{"employee_id": filter.EmployeeIDs})
	}
	return b
}
