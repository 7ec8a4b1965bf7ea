package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"villagedesk/internal/config"
	"villagedesk/internal/domain"
	"villagedesk/internal/engine/auth"
	"villagedesk/internal/events"
	"villagedesk/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ProblemReportOptions are parameters for reporting a problem.
type ProblemReportOptions struct {
	ID          string
	Title       string
	Description string
	Category    string
	Priority    string
}

func (e Engine) ReportProblem(ctx context.Context, caller domain.Identity, opts ProblemReportOptions) (domain.Problem, error) {
	if e.Config == nil {
		return domain.Problem{}, errors.New("config not loaded")
	}
	if err := auth.Check(caller.Role, auth.OpReportProblem); err != nil {
		return domain.Problem{}, err
	}
	if opts.Title == "" {
		return domain.Problem{}, ValidationError{Field: "title", Reason: "required"}
	}
	if opts.Description == "" {
		return domain.Problem{}, ValidationError{Field: "description", Reason: "required"}
	}
	if opts.Category == "" {
		return domain.Problem{}, ValidationError{Field: "category", Reason: "required"}
	}
	if !e.Config.ValidCategory(opts.Category) {
		return domain.Problem{}, ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", opts.Category)}
	}
	if opts.Priority == "" {
		return domain.Problem{}, ValidationError{Field: "priority", Reason: "required"}
	}
	if !e.Config.ValidPriority(opts.Priority) {
		return domain.Problem{}, ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", opts.Priority)}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Problem{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Category:    opts.Category,
		Priority:    opts.Priority,
		Status:      domain.ProblemOpen,
		ReportedBy:  caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProblem(ctx, tx, p); err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, "problem.reported", "problem", p.ID, caller.ID, events.EventPayload{
		"title":    p.Title,
		"category": p.Category,
		"priority": p.Priority,
	}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// canView applies the visibility rule for unverified problems: only the
// admin role and the reporter may see them. Anonymous callers get
// ErrNotFound so the problem's existence is not revealed.
func (e Engine) canView(caller domain.Identity, p domain.Problem) error {
	if p.Verified {
		return nil
	}
	if caller.Role == domain.RoleAdmin || (caller.ID != "" && caller.ID == p.ReportedBy) {
		return nil
	}
	if caller.ID == "" {
		return repo.ErrNotFound
	}
	return auth.ForbiddenError{Role: caller.Role, Operation: auth.OpViewUnverified}
}

func (e Engine) GetProblem(ctx context.Context, caller domain.Identity, id string) (domain.Problem, error) {
	p, err := e.Repo.GetProblem(ctx, id)
	if err != nil {
		return domain.Problem{}, err
	}
	if err := e.canView(caller, p); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// ListProblems returns problems visible to the caller. Non-admin callers
// only ever see verified problems, regardless of the requested filters.
func (e Engine) ListProblems(ctx context.Context, caller domain.Identity, f repo.ProblemFilters) ([]domain.Problem, error) {
	if caller.Role != domain.RoleAdmin {
		f.VerifiedOnly = true
		f.TriageFirst = false
	}
	if f.Limit <= 0 {
		f.Limit = e.pageSize()
	}
	return e.Repo.ListProblems(ctx, f)
}

// ListAssigned returns the caller's assigned problems, newest first.
func (e Engine) ListAssigned(ctx context.Context, caller domain.Identity, limit int) ([]domain.Problem, error) {
	if caller.ID == "" {
		return nil, auth.ForbiddenError{Operation: "problem.list.assigned", Reason: "authentication required"}
	}
	if limit <= 0 {
		limit = e.pageSize()
	}
	return e.Repo.ListProblems(ctx, repo.ProblemFilters{AssignedTo: caller.ID, Limit: limit})
}

func (e Engine) pageSize() int {
	if e.Config != nil && e.Config.Listing.PageSize > 0 {
		return e.Config.Listing.PageSize
	}
	return 50
}

func (e Engine) VerifyProblem(ctx context.Context, caller domain.Identity, problemID string) (domain.Problem, error) {
	if err := auth.Check(caller.Role, auth.OpVerifyProblem); err != nil {
		return domain.Problem{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProblemTx(ctx, tx, problemID)
	if err != nil {
		return domain.Problem{}, err
	}
	if p.Verified {
		return p, InvalidStateError{Reason: "problem already verified"}
	}
	p.Verified = true
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProblem(ctx, tx, p); err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, "problem.verified", "problem", p.ID, caller.ID, events.EventPayload{"title": p.Title}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// AssignProblem binds a verified problem to a villager. Reassignment of an
// already-assigned problem requires force and is recorded with the
// previous assignee in the event payload.
func (e Engine) AssignProblem(ctx context.Context, caller domain.Identity, problemID, villagerID string, force bool) (domain.Problem, error) {
	if err := auth.Check(caller.Role, auth.OpAssignProblem); err != nil {
		return domain.Problem{}, err
	}
	if villagerID == "" {
		return domain.Problem{}, ValidationError{Field: "assigned_to", Reason: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProblemTx(ctx, tx, problemID)
	if err != nil {
		return domain.Problem{}, err
	}
	target, err := e.Repo.GetUserTx(ctx, tx, villagerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Problem{}, ValidationError{Field: "assigned_to", Reason: fmt.Sprintf("unknown user %s", villagerID)}
		}
		return domain.Problem{}, err
	}
	if target.Role != domain.RoleVillager {
		return domain.Problem{}, ValidationError{Field: "assigned_to", Reason: fmt.Sprintf("user %s has role %s, assignment requires a villager", target.ID, target.Role)}
	}
	if !p.Verified {
		return domain.Problem{}, InvalidStateError{Reason: "problem must be verified before assignment"}
	}
	payload := events.EventPayload{"assigned_to": villagerID}
	if p.AssignedTo != nil {
		if !force {
			return domain.Problem{}, InvalidStateError{Reason: fmt.Sprintf("problem already assigned to %s", *p.AssignedTo)}
		}
		payload["previous"] = *p.AssignedTo
		payload["forced"] = true
	}
	p.AssignedTo = &villagerID
	if p.Status == domain.ProblemOpen {
		p.Status = domain.ProblemInProgress
	}
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProblem(ctx, tx, p); err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, "problem.assigned", "problem", p.ID, caller.ID, payload); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// SetProblemStatus moves the triage label. Any transition among the four
// statuses is legal; status is a label, not a strict workflow.
func (e Engine) SetProblemStatus(ctx context.Context, caller domain.Identity, problemID, status string) (domain.Problem, error) {
	if err := auth.Check(caller.Role, auth.OpUpdateStatus); err != nil {
		return domain.Problem{}, err
	}
	if !domain.ValidProblemStatus(status) {
		return domain.Problem{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProblemTx(ctx, tx, problemID)
	if err != nil {
		return domain.Problem{}, err
	}
	from := p.Status
	p.Status = status
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProblem(ctx, tx, p); err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, "problem.status.updated", "problem", p.ID, caller.ID, events.EventPayload{
		"from": from,
		"to":   status,
	}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// MarkComplete records the assigned villager's completion claim. The
// caller must be the assignee; role alone is not enough.
func (e Engine) MarkComplete(ctx context.Context, caller domain.Identity, problemID, message string) (domain.Problem, error) {
	if err := auth.Check(caller.Role, auth.OpMarkComplete); err != nil {
		return domain.Problem{}, err
	}
	if message == "" {
		return domain.Problem{}, ValidationError{Field: "message", Reason: "required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProblemTx(ctx, tx, problemID)
	if err != nil {
		return domain.Problem{}, err
	}
	if p.AssignedTo == nil || *p.AssignedTo != caller.ID {
		return domain.Problem{}, auth.ForbiddenError{
			Role:      caller.Role,
			Operation: auth.OpMarkComplete,
			Reason:    "only the assigned villager may mark a problem complete",
		}
	}
	if p.CompletedByAssignee {
		return domain.Problem{}, InvalidStateError{Reason: "completion already recorded"}
	}
	p.CompletedByAssignee = true
	p.CompletionMessage = &message
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProblem(ctx, tx, p); err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, "problem.completed", "problem", p.ID, caller.ID, events.EventPayload{"message": message}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// VerifyCompletion is the admin confirmation of a villager's completion
// claim. It sets status to resolved. Repeat calls return the confirmed
// problem unchanged.
func (e Engine) VerifyCompletion(ctx context.Context, caller domain.Identity, problemID string) (domain.Problem, error) {
	if err := auth.Check(caller.Role, auth.OpVerifyCompletion); err != nil {
		return domain.Problem{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProblemTx(ctx, tx, problemID)
	if err != nil {
		return domain.Problem{}, err
	}
	if p.CompletionVerified {
		return p, nil
	}
	if !p.CompletedByAssignee {
		return domain.Problem{}, InvalidStateError{Reason: "assignee has not marked the problem complete"}
	}
	p.CompletionVerified = true
	p.Status = domain.ProblemResolved
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProblem(ctx, tx, p); err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, "problem.completion.verified", "problem", p.ID, caller.ID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// UpvoteProblem adds the caller to the problem's voter set. Votes are
// add-only; a repeat vote returns the current count without error.
func (e Engine) UpvoteProblem(ctx context.Context, caller domain.Identity, problemID string) (domain.Problem, error) {
	if err := auth.Check(caller.Role, auth.OpUpvote); err != nil {
		return domain.Problem{}, err
	}
	p, err := e.Repo.GetProblem(ctx, problemID)
	if err != nil {
		return domain.Problem{}, err
	}
	if err := e.canView(caller, p); err != nil {
		return domain.Problem{}, err
	}
	voted, err := e.Repo.HasVoted(ctx, "problem", p.ID, caller.ID)
	if err != nil {
		return domain.Problem{}, err
	}
	if voted {
		return p, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	count, err := e.Repo.AddVote(ctx, tx, "problem", p.ID, caller.ID, e.Now())
	if err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, "problem.upvoted", "problem", p.ID, caller.ID, events.EventPayload{"upvotes": count}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	p.Upvotes = count
	p.UpvoterIDs = append(p.UpvoterIDs, caller.ID)
	return p, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
