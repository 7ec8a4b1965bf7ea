package repo

import (
	"context"
	"database/sql"
	"strings"

	"villagedesk/internal/domain"
)

const solutionColumns = `id,problem_id,title,description,estimated_cost,estimated_time,status,proposed_by,created_at,updated_at`

func (r Repo) InsertSolution(ctx context.Context, tx *sql.Tx, s domain.Solution) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO solutions(`+solutionColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProblemID, s.Title, s.Description, nullableIntPtr(s.EstimatedCost), nullableStringPtr(s.EstimatedTime),
		s.Status, s.ProposedBy, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateSolutionStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE solutions SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSolution(scan func(dest ...any) error) (domain.Solution, error) {
	var s domain.Solution
	var cost sql.NullInt64
	var estTime sql.NullString
	err := scan(&s.ID, &s.ProblemID, &s.Title, &s.Description, &cost, &estTime, &s.Status, &s.ProposedBy, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if cost.Valid {
		c := int(cost.Int64)
		s.EstimatedCost = &c
	}
	if estTime.Valid {
		s.EstimatedTime = &estTime.String
	}
	return s, nil
}

func (r Repo) GetSolution(ctx context.Context, id string) (domain.Solution, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+solutionColumns+` FROM solutions WHERE id=?`, id)
	s, err := scanSolution(row.Scan)
	if err != nil {
		return s, err
	}
	s.UpvoterIDs, err = r.ListVoters(ctx, "solution", s.ID)
	s.Upvotes = len(s.UpvoterIDs)
	return s, err
}

func (r Repo) GetSolutionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Solution, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+solutionColumns+` FROM solutions WHERE id=?`, id)
	s, err := scanSolution(row.Scan)
	if err != nil {
		return s, err
	}
	s.UpvoterIDs, err = r.ListVotersTx(ctx, tx, "solution", s.ID)
	s.Upvotes = len(s.UpvoterIDs)
	return s, err
}

type SolutionFilters struct {
	ProblemID  string
	Status     string
	ProposedBy string
	Limit      int
}

func (r Repo) ListSolutions(ctx context.Context, f SolutionFilters) ([]domain.Solution, error) {
	var clauses []string
	var args []any
	if f.ProblemID != "" {
		clauses = append(clauses, "problem_id=?")
		args = append(args, f.ProblemID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ProposedBy != "" {
		clauses = append(clauses, "proposed_by=?")
		args = append(args, f.ProposedBy)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + solutionColumns + ` FROM solutions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Solution
	for rows.Next() {
		s, err := scanSolution(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].UpvoterIDs, err = r.ListVoters(ctx, "solution", res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Upvotes = len(res[i].UpvoterIDs)
	}
	return res, nil
}
