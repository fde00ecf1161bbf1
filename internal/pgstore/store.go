// Package pgstore is the reference Postgres adapter implementing
// core.RecordStore: sqlx for query execution, go-sqlbuilder for query
// construction, and JSONB columns for the dynamic Record/FieldValue
// shapes the core never fixes a static schema for.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
	"github.com/Ramsey-B/reconcile/pkg/fingerprint"
)

// Store implements core.RecordStore over a Postgres database via sqlx.
type Store struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// New wraps an already-connected *sqlx.DB.
func New(db *sqlx.DB, logger ectologger.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// recordRow is the JSONB-backed row shape for the records table.
type recordRow struct {
	DataSourceID string `db:"data_source_id"`
	RecordID     string `db:"record_id"`
	FieldsJSON   []byte `db:"fields_json"`
}

type fieldWire struct {
	Raw   any  `json:"raw"`
	IsNil bool `json:"is_nil"`
}

func encodeFields(fields map[string]core.FieldValue) ([]byte, error) {
	wire := make(map[string]fieldWire, len(fields))
	for k, v := range fields {
		wire[k] = fieldWire{Raw: v.Raw, IsNil: v.IsNil}
	}
	return json.Marshal(wire)
}

func decodeFields(raw []byte) (map[string]core.FieldValue, error) {
	var wire map[string]fieldWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	fields := make(map[string]core.FieldValue, len(wire))
	for k, v := range wire {
		fields[k] = core.FieldValue{Raw: v.Raw, IsNil: v.IsNil}
	}
	return fields, nil
}

// Stream reads every record of a data source ordered by record_id, and
// hands them back as an iter.Seq2. The reference adapter loads the full
// result set into memory before iterating rather than holding a live
// cursor across the yield boundary — acceptable for the dataset sizes the
// reference deployment targets; a production adapter handling larger
// sources would page with keyset pagination instead.
func (s *Store) Stream(ctx context.Context, dataSourceID string) (iter.Seq2[core.Record, error], error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.Stream")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("data_source_id", "record_id", "fields_json")
	sb.From("records")
	sb.Where(sb.Equal("data_source_id", dataSourceID))
	sb.OrderBy("record_id")

	query, args := sb.Build()
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to stream records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to stream records")
	}

	return func(yield func(core.Record, error) bool) {
		for _, row := range rows {
			fields, err := decodeFields(row.FieldsJSON)
			if err != nil {
				yield(core.Record{}, fmt.Errorf("pgstore: decoding record %s: %w", row.RecordID, err))
				return
			}
			if !yield(core.Record{ID: row.RecordID, Fields: fields}, nil) {
				return
			}
		}
	}, nil
}

type dataSourceRow struct {
	ID         string    `db:"id"`
	ProjectID  string    `db:"project_id"`
	Name       string    `db:"name"`
	SchemaJSON []byte    `db:"schema_json"`
	CreatedAt  time.Time `db:"created_at"`
}

// GetDataSource resolves a DataSource by ID.
func (s *Store) GetDataSource(ctx context.Context, dataSourceID string) (core.DataSource, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.GetDataSource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "name", "schema_json", "created_at")
	sb.From("data_sources")
	sb.Where(sb.Equal("id", dataSourceID))

	query, args := sb.Build()
	var row dataSourceRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return core.DataSource{}, fmt.Errorf("%w: data source %s", core.ErrNotFound, dataSourceID)
		}
		s.logger.WithContext(ctx).WithError(err).Error("failed to get data source")
		return core.DataSource{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get data source")
	}

	var schema core.Schema
	if err := json.Unmarshal(row.SchemaJSON, &schema); err != nil {
		return core.DataSource{}, fmt.Errorf("pgstore: decoding schema for %s: %w", dataSourceID, err)
	}

	return core.DataSource{
		ID:        row.ID,
		ProjectID: row.ProjectID,
		Name:      row.Name,
		Schema:    schema,
		CreatedAt: row.CreatedAt,
	}, nil
}

// WriteResults persists a batch of results. Idempotent on (job_id,
// record_b_id) via ON CONFLICT DO UPDATE: each row's fingerprint is
// recomputed from its own (record_a_id, confidence, classification,
// breakdown) and the conflicting row is only rewritten when that
// fingerprint actually changed, so a re-delivered or re-checkpointed
// batch that reproduces identical results is a genuine no-op write
// rather than an unconditional overwrite.
func (s *Store) WriteResults(ctx context.Context, jobID string, batch []core.MatchingResult) error {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.WriteResults")
	defer span.End()

	if len(batch) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("matching_results")
	sb.Cols("job_id", "record_a_id", "record_b_id", "confidence", "classification", "breakdown_json", "result_fingerprint")

	for _, r := range batch {
		breakdown, err := json.Marshal(r.Breakdown)
		if err != nil {
			return fmt.Errorf("pgstore: encoding breakdown for %s: %w", r.RecordBID, err)
		}
		fp, err := resultFingerprint(r)
		if err != nil {
			return fmt.Errorf("pgstore: fingerprinting result for %s: %w", r.RecordBID, err)
		}
		sb.Values(jobID, r.RecordAID, r.RecordBID, r.Confidence, r.Classification, breakdown, fp)
	}

	query, args := sb.Build()
	query += ` ON CONFLICT (job_id, record_b_id) DO UPDATE SET
		record_a_id = EXCLUDED.record_a_id, confidence = EXCLUDED.confidence,
		classification = EXCLUDED.classification, breakdown_json = EXCLUDED.breakdown_json,
		result_fingerprint = EXCLUDED.result_fingerprint
		WHERE matching_results.result_fingerprint IS DISTINCT FROM EXCLUDED.result_fingerprint`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to write matching results")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write matching results")
	}
	return nil
}

// resultFingerprint hashes the mutable portion of a result so
// WriteResults can detect a true no-op on a re-delivered batch instead
// of always rewriting the conflicting row.
func resultFingerprint(r core.MatchingResult) (string, error) {
	raw, err := json.Marshal(struct {
		RecordAID      *string               `json:"record_a_id"`
		Confidence     float64               `json:"confidence"`
		Classification core.Classification   `json:"classification"`
		Breakdown      []core.FieldBreakdown `json:"breakdown"`
	}{r.RecordAID, r.Confidence, r.Classification, r.Breakdown})
	if err != nil {
		return "", err
	}
	return fingerprint.GenerateFromJSON(raw)
}

type jobRow struct {
	ID            string     `db:"id"`
	ProjectID     string     `db:"project_id"`
	OwnerUserID   string     `db:"owner_user_id"`
	SourceAID     string     `db:"source_a_id"`
	SourceBID     string     `db:"source_b_id"`
	SpecJSON      []byte     `db:"spec_json"`
	SpecHash      string     `db:"spec_hash"`
	Threshold     float64    `db:"threshold"`
	Status        string     `db:"status"`
	Total         int        `db:"total"`
	Processed     int        `db:"processed"`
	Matched       int        `db:"matched"`
	Unmatched     int        `db:"unmatched"`
	FailureReason string     `db:"failure_reason"`
	CreatedAt     time.Time  `db:"created_at"`
	StartedAt     *time.Time `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}

func jobFromRow(row jobRow) (core.ReconciliationJob, error) {
	var spec core.MatchingSpec
	if err := json.Unmarshal(row.SpecJSON, &spec); err != nil {
		return core.ReconciliationJob{}, fmt.Errorf("pgstore: decoding spec for job %s: %w", row.ID, err)
	}
	return core.ReconciliationJob{
		ID:            row.ID,
		ProjectID:     row.ProjectID,
		OwnerUserID:   row.OwnerUserID,
		SourceAID:     row.SourceAID,
		SourceBID:     row.SourceBID,
		Spec:          spec,
		SpecHash:      row.SpecHash,
		Threshold:     row.Threshold,
		Status:        core.JobStatus(row.Status),
		Counters:      core.JobCounters{Total: row.Total, Processed: row.Processed, Matched: row.Matched, Unmatched: row.Unmatched},
		FailureReason: row.FailureReason,
		CreatedAt:     row.CreatedAt,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
	}, nil
}

// PersistJobState upserts a job's full row, used both at creation and at
// every state transition and checkpoint.
func (s *Store) PersistJobState(ctx context.Context, job core.ReconciliationJob) error {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.PersistJobState")
	defer span.End()

	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("pgstore: encoding spec for job %s: %w", job.ID, err)
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("reconciliation_jobs")
	sb.Cols("id", "project_id", "owner_user_id", "source_a_id", "source_b_id", "spec_json", "spec_hash",
		"threshold", "status", "total", "processed", "matched", "unmatched", "failure_reason",
		"created_at", "started_at", "completed_at")
	sb.Values(job.ID, job.ProjectID, job.OwnerUserID, job.SourceAID, job.SourceBID, specJSON, job.SpecHash,
		job.Threshold, job.Status, job.Counters.Total, job.Counters.Processed, job.Counters.Matched, job.Counters.Unmatched,
		job.FailureReason, job.CreatedAt, job.StartedAt, job.CompletedAt)

	query, args := sb.Build()
	query += ` ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status, total = EXCLUDED.total, processed = EXCLUDED.processed,
		matched = EXCLUDED.matched, unmatched = EXCLUDED.unmatched, failure_reason = EXCLUDED.failure_reason,
		started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("failed to persist job state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist job state")
	}
	return nil
}

// GetJob resolves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (core.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.GetJob")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "owner_user_id", "source_a_id", "source_b_id", "spec_json", "spec_hash",
		"threshold", "status", "total", "processed", "matched", "unmatched", "failure_reason",
		"created_at", "started_at", "completed_at")
	sb.From("reconciliation_jobs")
	sb.Where(sb.Equal("id", jobID))

	query, args := sb.Build()
	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return core.ReconciliationJob{}, fmt.Errorf("%w: job %s", core.ErrNotFound, jobID)
		}
		s.logger.WithContext(ctx).WithError(err).Error("failed to get job")
		return core.ReconciliationJob{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get job")
	}
	return jobFromRow(row)
}

// ListJobs lists jobs for a project, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, projectID string, status *core.JobStatus) ([]core.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.ListJobs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "owner_user_id", "source_a_id", "source_b_id", "spec_json", "spec_hash",
		"threshold", "status", "total", "processed", "matched", "unmatched", "failure_reason",
		"created_at", "started_at", "completed_at")
	sb.From("reconciliation_jobs")
	conds := []string{sb.Equal("project_id", projectID)}
	if status != nil {
		conds = append(conds, sb.Equal("status", *status))
	}
	sb.Where(conds...)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to list jobs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list jobs")
	}

	jobs := make([]core.ReconciliationJob, 0, len(rows))
	for _, row := range rows {
		job, err := jobFromRow(row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// DeleteJob removes a job; ON DELETE CASCADE takes its results with it.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.DeleteJob")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("reconciliation_jobs")
	sb.Where(sb.Equal("id", jobID))

	query, args := sb.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to delete job")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete job")
	}
	return nil
}

type caseRow struct {
	ID               string     `db:"id"`
	ProjectID        string     `db:"project_id"`
	JobID            string     `db:"job_id"`
	ResultJobID      string     `db:"result_job_id"`
	ResultRecordBID  string     `db:"result_record_b_id"`
	Status           string     `db:"status"`
	Assignee         *string    `db:"assignee"`
	AssignedAt       *time.Time `db:"assigned_at"`
	ResolvedBy       *string    `db:"resolved_by"`
	ResolvedAt       *time.Time `db:"resolved_at"`
	ResolutionNote   *string    `db:"resolution_note"`
	CreatedAt        time.Time  `db:"created_at"`
}

func caseFromRow(row caseRow) core.AdjudicationCase {
	return core.AdjudicationCase{
		ID:             row.ID,
		ProjectID:      row.ProjectID,
		JobID:          row.JobID,
		ResultRef:      core.ResultRef{JobID: row.ResultJobID, RecordBID: row.ResultRecordBID},
		Status:         core.CaseStatus(row.Status),
		Assignee:       row.Assignee,
		AssignedAt:     row.AssignedAt,
		ResolvedBy:     row.ResolvedBy,
		ResolvedAt:     row.ResolvedAt,
		ResolutionNote: row.ResolutionNote,
		CreatedAt:      row.CreatedAt,
	}
}

// PersistCase inserts a case, or returns the existing one for the same
// ResultRef on a conflict — the idempotent creation §4.9 requires.
func (s *Store) PersistCase(ctx context.Context, c core.AdjudicationCase) (core.AdjudicationCase, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.PersistCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("adjudication_cases")
	sb.Cols("id", "project_id", "job_id", "result_job_id", "result_record_b_id", "status", "created_at")
	sb.Values(c.ID, c.ProjectID, c.JobID, c.ResultRef.JobID, c.ResultRef.RecordBID, c.Status, c.CreatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (result_job_id, result_record_b_id) DO NOTHING"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to persist adjudication case")
		return core.AdjudicationCase{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist adjudication case")
	}

	selectSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	selectSB.Select("id", "project_id", "job_id", "result_job_id", "result_record_b_id", "status",
		"assignee", "assigned_at", "resolved_by", "resolved_at", "resolution_note", "created_at")
	selectSB.From("adjudication_cases")
	selectSB.Where(
		selectSB.Equal("result_job_id", c.ResultRef.JobID),
		selectSB.Equal("result_record_b_id", c.ResultRef.RecordBID),
	)
	query, args = selectSB.Build()
	var row caseRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to read back adjudication case")
		return core.AdjudicationCase{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read back adjudication case")
	}
	return caseFromRow(row), nil
}

// UpdateCase persists a mutated case (assignment, resolution, appeal).
func (s *Store) UpdateCase(ctx context.Context, c core.AdjudicationCase) error {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.UpdateCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("adjudication_cases")
	sb.Set(
		sb.Assign("status", c.Status),
		sb.Assign("assignee", c.Assignee),
		sb.Assign("assigned_at", c.AssignedAt),
		sb.Assign("resolved_by", c.ResolvedBy),
		sb.Assign("resolved_at", c.ResolvedAt),
		sb.Assign("resolution_note", c.ResolutionNote),
	)
	sb.Where(sb.Equal("id", c.ID))

	query, args := sb.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to update adjudication case")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update adjudication case")
	}
	return nil
}

// GetCase resolves a case by ID.
func (s *Store) GetCase(ctx context.Context, caseID string) (core.AdjudicationCase, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.GetCase")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "job_id", "result_job_id", "result_record_b_id", "status",
		"assignee", "assigned_at", "resolved_by", "resolved_at", "resolution_note", "created_at")
	sb.From("adjudication_cases")
	sb.Where(sb.Equal("id", caseID))

	query, args := sb.Build()
	var row caseRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return core.AdjudicationCase{}, fmt.Errorf("%w: case %s", core.ErrNotFound, caseID)
		}
		s.logger.WithContext(ctx).WithError(err).Error("failed to get adjudication case")
		return core.AdjudicationCase{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get adjudication case")
	}
	return caseFromRow(row), nil
}

// ListCases lists cases matching filter, paginated, and the total matching
// count across all pages.
func (s *Store) ListCases(ctx context.Context, filter core.CaseFilter, pageNumber, pageSize int) ([]core.AdjudicationCase, int, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.ListCases")
	defer span.End()

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)")
	countSB.From("adjudication_cases")
	var conds []string
	if filter.ProjectID != nil {
		conds = append(conds, countSB.Equal("project_id", *filter.ProjectID))
	}
	if filter.Status != nil {
		conds = append(conds, countSB.Equal("status", *filter.Status))
	}
	if filter.Assignee != nil {
		conds = append(conds, countSB.Equal("assignee", *filter.Assignee))
	}
	if len(conds) > 0 {
		countSB.Where(conds...)
	}
	query, args := countSB.Build()
	var total int
	if err := s.db.GetContext(ctx, &total, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to count adjudication cases")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count adjudication cases")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "job_id", "result_job_id", "result_record_b_id", "status",
		"assignee", "assigned_at", "resolved_by", "resolved_at", "resolution_note", "created_at")
	sb.From("adjudication_cases")
	var listConds []string
	if filter.ProjectID != nil {
		listConds = append(listConds, sb.Equal("project_id", *filter.ProjectID))
	}
	if filter.Status != nil {
		listConds = append(listConds, sb.Equal("status", *filter.Status))
	}
	if filter.Assignee != nil {
		listConds = append(listConds, sb.Equal("assignee", *filter.Assignee))
	}
	if len(listConds) > 0 {
		sb.Where(listConds...)
	}
	sb.OrderBy("created_at DESC")
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	sb.Limit(pageSize)
	sb.Offset((pageNumber - 1) * pageSize)

	query, args = sb.Build()
	var rows []caseRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to list adjudication cases")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list adjudication cases")
	}

	cases := make([]core.AdjudicationCase, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, caseFromRow(row))
	}
	return cases, total, nil
}

type decisionRow struct {
	ID           string     `db:"id"`
	CaseID       string     `db:"case_id"`
	Decision     string     `db:"decision"`
	DecidedBy    string     `db:"decided_by"`
	DecidedAt    time.Time  `db:"decided_at"`
	Appealed     bool       `db:"appealed"`
	AppealReason *string    `db:"appeal_reason"`
	AppealedAt   *time.Time `db:"appealed_at"`
}

func decisionFromRow(row decisionRow) core.AdjudicationDecision {
	return core.AdjudicationDecision{
		ID:           row.ID,
		CaseID:       row.CaseID,
		Decision:     core.DecisionKind(row.Decision),
		DecidedBy:    row.DecidedBy,
		DecidedAt:    row.DecidedAt,
		Appealed:     row.Appealed,
		AppealReason: row.AppealReason,
		AppealedAt:   row.AppealedAt,
	}
}

// PersistDecision upserts a decision by ID: a fresh ID appends a new
// decision; re-persisting an existing ID (as Appeal does, to flip
// Appealed on the current decision) mutates it in place.
func (s *Store) PersistDecision(ctx context.Context, d core.AdjudicationDecision) error {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.PersistDecision")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("adjudication_decisions")
	sb.Cols("id", "case_id", "decision", "decided_by", "decided_at", "appealed", "appeal_reason", "appealed_at")
	sb.Values(d.ID, d.CaseID, d.Decision, d.DecidedBy, d.DecidedAt, d.Appealed, d.AppealReason, d.AppealedAt)

	query, args := sb.Build()
	query += ` ON CONFLICT (id) DO UPDATE SET
		appealed = EXCLUDED.appealed, appeal_reason = EXCLUDED.appeal_reason, appealed_at = EXCLUDED.appealed_at`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to persist adjudication decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist adjudication decision")
	}
	return nil
}

// ListDecisions lists decisions for a case, most recent first.
func (s *Store) ListDecisions(ctx context.Context, caseID string) ([]core.AdjudicationDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "pgstore.Store.ListDecisions")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "case_id", "decision", "decided_by", "decided_at", "appealed", "appeal_reason", "appealed_at")
	sb.From("adjudication_decisions")
	sb.Where(sb.Equal("case_id", caseID))
	sb.OrderBy("decided_at DESC")

	query, args := sb.Build()
	var rows []decisionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("failed to list adjudication decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list adjudication decisions")
	}

	decisions := make([]core.AdjudicationDecision, 0, len(rows))
	for _, row := range rows {
		decisions = append(decisions, decisionFromRow(row))
	}
	return decisions, nil
}
