package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"villagedesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const problemColumns = `id,title,description,category,priority,status,is_verified,assigned_to,is_completed,completion_message,completion_verified,reported_by,created_at,updated_at`

func (r Repo) InsertProblem(ctx context.Context, tx *sql.Tx, p domain.Problem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO problems(`+problemColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.Description, p.Category, p.Priority, p.Status, boolInt(p.Verified),
		nullableStringPtr(p.AssignedTo), boolInt(p.CompletedByAssignee), nullableStringPtr(p.CompletionMessage),
		boolInt(p.CompletionVerified), p.ReportedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProblem(ctx context.Context, tx *sql.Tx, p domain.Problem) error {
	res, err := tx.ExecContext(ctx, `UPDATE problems SET title=?, description=?, category=?, priority=?, status=?, is_verified=?, assigned_to=?, is_completed=?, completion_message=?, completion_verified=?, updated_at=? WHERE id=?`,
		p.Title, p.Description, p.Category, p.Priority, p.Status, boolInt(p.Verified),
		nullableStringPtr(p.AssignedTo), boolInt(p.CompletedByAssignee), nullableStringPtr(p.CompletionMessage),
		boolInt(p.CompletionVerified), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProblem(scan func(dest ...any) error) (domain.Problem, error) {
	var p domain.Problem
	var verified, completed, completionVerified int
	var assignedTo, completionMessage sql.NullString
	err := scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.Priority, &p.Status, &verified,
		&assignedTo, &completed, &completionMessage, &completionVerified, &p.ReportedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Verified = verified != 0
	p.CompletedByAssignee = completed != 0
	p.CompletionVerified = completionVerified != 0
	if assignedTo.Valid {
		p.AssignedTo = &assignedTo.String
	}
	if completionMessage.Valid {
		p.CompletionMessage = &completionMessage.String
	}
	return p, nil
}

func (r Repo) GetProblem(ctx context.Context, id string) (domain.Problem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM problems WHERE id=?`, id)
	p, err := scanProblem(row.Scan)
	if err != nil {
		return p, err
	}
	p.UpvoterIDs, err = r.ListVoters(ctx, "problem", p.ID)
	p.Upvotes = len(p.UpvoterIDs)
	return p, err
}

func (r Repo) GetProblemTx(ctx context.Context, tx *sql.Tx, id string) (domain.Problem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM problems WHERE id=?`, id)
	p, err := scanProblem(row.Scan)
	if err != nil {
		return p, err
	}
	p.UpvoterIDs, err = r.ListVotersTx(ctx, tx, "problem", p.ID)
	p.Upvotes = len(p.UpvoterIDs)
	return p, err
}

type ProblemFilters struct {
	Status          string
	Category        string
	Priority        string
	AssignedTo      string
	ReportedBy      string
	VerifiedOnly    bool
	TriageFirst     bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProblems(ctx context.Context, f ProblemFilters) ([]domain.Problem, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.ReportedBy != "" {
		clauses = append(clauses, "reported_by=?")
		args = append(args, f.ReportedBy)
	}
	if f.VerifiedOnly {
		clauses = append(clauses, "is_verified=1")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	order := `ORDER BY created_at DESC, id DESC`
	if f.TriageFirst {
		// Admin dashboard: unverified first, then completed awaiting
		// confirmation, then everything else.
		order = `ORDER BY
			CASE WHEN is_verified = 0 THEN 0
			     WHEN is_completed = 1 AND completion_verified = 0 THEN 1
			     ELSE 2 END,
			created_at DESC, id DESC`
	}
	query := `SELECT ` + problemColumns + ` FROM problems ` + where + ` ` + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Problem
	for rows.Next() {
		p, err := scanProblem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].UpvoterIDs, err = r.ListVoters(ctx, "problem", res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Upvotes = len(res[i].UpvoterIDs)
	}
	return res, nil
}

func (r Repo) CountProblems(ctx context.Context) (total, solved int, err error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM problems GROUP BY status`)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return 0, 0, err
		}
		total += count
		if status == domain.ProblemResolved || status == domain.ProblemClosed {
			solved += count
		}
	}
	return total, solved, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entity, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entity.Valid {
			e.EntityID = entity.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
