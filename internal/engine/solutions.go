package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"villagedesk/internal/domain"
	"villagedesk/internal/engine/auth"
	"villagedesk/internal/events"
	"villagedesk/internal/repo"
)

// SolutionProposeOptions are parameters for proposing a solution.
type SolutionProposeOptions struct {
	ID            string
	ProblemID     string
	Title         string
	Description   string
	EstimatedCost *int
	EstimatedTime string
}

func (e Engine) ProposeSolution(ctx context.Context, caller domain.Identity, opts SolutionProposeOptions) (domain.Solution, error) {
	if err := auth.Check(caller.Role, auth.OpProposeSolution); err != nil {
		return domain.Solution{}, err
	}
	if opts.ProblemID == "" {
		return domain.Solution{}, ValidationError{Field: "problem_id", Reason: "required"}
	}
	if opts.Title == "" {
		return domain.Solution{}, ValidationError{Field: "title", Reason: "required"}
	}
	if opts.Description == "" {
		return domain.Solution{}, ValidationError{Field: "description", Reason: "required"}
	}
	if opts.EstimatedCost != nil && *opts.EstimatedCost < 0 {
		return domain.Solution{}, ValidationError{Field: "estimated_cost", Reason: "must not be negative"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Solution{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProblemTx(ctx, tx, opts.ProblemID)
	if err != nil {
		return domain.Solution{}, err
	}
	if !p.Verified {
		return domain.Solution{}, InvalidStateError{Reason: "solutions require a verified problem"}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	s := domain.Solution{
		ID:            id,
		ProblemID:     p.ID,
		Title:         opts.Title,
		Description:   opts.Description,
		EstimatedCost: opts.EstimatedCost,
		EstimatedTime: optionalString(opts.EstimatedTime),
		Status:        domain.SolutionPending,
		ProposedBy:    caller.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Repo.InsertSolution(ctx, tx, s); err != nil {
		return domain.Solution{}, err
	}
	if err := e.Events.Append(ctx, tx, "solution.proposed", "solution", s.ID, caller.ID, events.EventPayload{
		"problem_id": p.ID,
		"title":      s.Title,
	}); err != nil {
		return domain.Solution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Solution{}, err
	}
	return s, nil
}

// ModerateSolution moves a solution's status. Any transition among the
// four statuses is legal, mirroring the problem status permissiveness.
func (e Engine) ModerateSolution(ctx context.Context, caller domain.Identity, solutionID, status string) (domain.Solution, error) {
	if err := auth.Check(caller.Role, auth.OpModerateSolution); err != nil {
		return domain.Solution{}, err
	}
	if !domain.ValidSolutionStatus(status) {
		return domain.Solution{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Solution{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSolutionTx(ctx, tx, solutionID)
	if err != nil {
		return domain.Solution{}, err
	}
	from := s.Status
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateSolutionStatus(ctx, tx, s.ID, status, now); err != nil {
		return domain.Solution{}, err
	}
	if err := e.Events.Append(ctx, tx, "solution.moderated", "solution", s.ID, caller.ID, events.EventPayload{
		"from": from,
		"to":   status,
	}); err != nil {
		return domain.Solution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Solution{}, err
	}
	s.Status = status
	s.UpdatedAt = now
	return s, nil
}

func (e Engine) UpvoteSolution(ctx context.Context, caller domain.Identity, solutionID string) (domain.Solution, error) {
	if err := auth.Check(caller.Role, auth.OpUpvote); err != nil {
		return domain.Solution{}, err
	}
	s, err := e.Repo.GetSolution(ctx, solutionID)
	if err != nil {
		return domain.Solution{}, err
	}
	voted, err := e.Repo.HasVoted(ctx, "solution", s.ID, caller.ID)
	if err != nil {
		return domain.Solution{}, err
	}
	if voted {
		return s, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Solution{}, err
	}
	defer tx.Rollback()

	count, err := e.Repo.AddVote(ctx, tx, "solution", s.ID, caller.ID, e.Now())
	if err != nil {
		return domain.Solution{}, err
	}
	if err := e.Events.Append(ctx, tx, "solution.upvoted", "solution", s.ID, caller.ID, events.EventPayload{"upvotes": count}); err != nil {
		return domain.Solution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Solution{}, err
	}
	s.Upvotes = count
	s.UpvoterIDs = append(s.UpvoterIDs, caller.ID)
	return s, nil
}

// ListSolutions returns solutions visible to the caller. Villagers are
// excluded from solution visibility.
func (e Engine) ListSolutions(ctx context.Context, caller domain.Identity, f repo.SolutionFilters) ([]domain.Solution, error) {
	if err := auth.Check(caller.Role, auth.OpViewSolutions); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = e.pageSize()
	}
	return e.Repo.ListSolutions(ctx, f)
}

func (e Engine) GetSolution(ctx context.Context, caller domain.Identity, id string) (domain.Solution, error) {
	if err := auth.Check(caller.Role, auth.OpViewSolutions); err != nil {
		return domain.Solution{}, err
	}
	return e.Repo.GetSolution(ctx, id)
}
