package engine_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"villagedesk/internal/config"
	"villagedesk/internal/db"
	"villagedesk/internal/domain"
	"villagedesk/internal/engine"
	"villagedesk/internal/engine/auth"
	"villagedesk/internal/migrate"
	"villagedesk/internal/repo"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Admin     domain.Identity
	Reporter  domain.Identity
	Worker    domain.Identity
	Volunteer domain.Identity
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("riverbend"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	env := testEnv{Engine: eng, Ctx: ctx}
	env.Admin = seedUser(t, eng, "Asha", "asha@riverbend.test", domain.RoleAdmin)
	env.Reporter = seedUser(t, eng, "Ravi", "ravi@riverbend.test", domain.RoleVillager)
	env.Worker = seedUser(t, eng, "Meera", "meera@riverbend.test", domain.RoleVillager)
	env.Volunteer = seedUser(t, eng, "Tomas", "tomas@riverbend.test", domain.RoleVolunteer)
	return env
}

func seedUser(t *testing.T, eng engine.Engine, name, email, role string) domain.Identity {
	t.Helper()
	u, err := eng.CreateUser(context.Background(), engine.UserRegisterOptions{
		Name:     name,
		Email:    email,
		Password: "longenough",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", email, err)
	}
	return domain.Identity{ID: u.ID, Name: u.Name, Role: u.Role}
}

func (env testEnv) report(t *testing.T) domain.Problem {
	t.Helper()
	p, err := env.Engine.ReportProblem(env.Ctx, env.Reporter, engine.ProblemReportOptions{
		Title:       "Broken hand pump",
		Description: "The pump near the school yields no water.",
		Category:    "water",
		Priority:    "high",
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	return p
}

func (env testEnv) reportVerified(t *testing.T) domain.Problem {
	t.Helper()
	p := env.report(t)
	p, err := env.Engine.VerifyProblem(env.Ctx, env.Admin, p.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return p
}

func TestReportValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts engine.ProblemReportOptions
	}{
		{"missing title", engine.ProblemReportOptions{Description: "d", Category: "water", Priority: "high"}},
		{"missing description", engine.ProblemReportOptions{Title: "t", Category: "water", Priority: "high"}},
		{"unknown category", engine.ProblemReportOptions{Title: "t", Description: "d", Category: "plumbing", Priority: "high"}},
		{"unknown priority", engine.ProblemReportOptions{Title: "t", Description: "d", Category: "water", Priority: "severe"}},
	}
	for _, tc := range cases {
		_, err := env.Engine.ReportProblem(env.Ctx, env.Reporter, tc.opts)
		var verr engine.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
	// only villagers report
	_, err := env.Engine.ReportProblem(env.Ctx, env.Volunteer, engine.ProblemReportOptions{
		Title: "t", Description: "d", Category: "water", Priority: "high",
	})
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError for volunteer report, got %v", err)
	}
}

func TestUnverifiedVisibility(t *testing.T) {
	env := newTestEnv(t)
	p := env.report(t)
	if p.Verified {
		t.Fatalf("new report must start unverified")
	}
	// anonymous callers get not found so unverified reports do not leak
	if _, err := env.Engine.GetProblem(env.Ctx, domain.Identity{}, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("anonymous: expected ErrNotFound, got %v", err)
	}
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.GetProblem(env.Ctx, env.Worker, p.ID); !errors.As(err, &forbidden) {
		t.Fatalf("other villager: expected ForbiddenError, got %v", err)
	}
	if _, err := env.Engine.GetProblem(env.Ctx, env.Reporter, p.ID); err != nil {
		t.Fatalf("reporter: %v", err)
	}
	if _, err := env.Engine.GetProblem(env.Ctx, env.Admin, p.ID); err != nil {
		t.Fatalf("admin: %v", err)
	}

	listed, err := env.Engine.ListProblems(env.Ctx, domain.Identity{}, repo.ProblemFilters{})
	if err != nil {
		t.Fatalf("anonymous list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("anonymous list must hide unverified reports, got %d", len(listed))
	}
	listed, err = env.Engine.ListProblems(env.Ctx, env.Admin, repo.ProblemFilters{})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("admin list: expected 1, got %d", len(listed))
	}

	if _, err := env.Engine.VerifyProblem(env.Ctx, env.Admin, p.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := env.Engine.GetProblem(env.Ctx, domain.Identity{}, p.ID); err != nil {
		t.Fatalf("anonymous after verify: %v", err)
	}
}

func TestVerifyTwice(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	_, err := env.Engine.VerifyProblem(env.Ctx, env.Admin, p.ID)
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestAssignProblem(t *testing.T) {
	env := newTestEnv(t)
	p := env.report(t)

	var invalid engine.InvalidStateError
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Worker.ID, false); !errors.As(err, &invalid) {
		t.Fatalf("unverified assign: expected InvalidStateError, got %v", err)
	}
	if _, err := env.Engine.VerifyProblem(env.Ctx, env.Admin, p.ID); err != nil {
		t.Fatal(err)
	}

	var verr engine.ValidationError
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, "", false); !errors.As(err, &verr) {
		t.Fatalf("empty assignee: expected ValidationError, got %v", err)
	}
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, "nobody", false); !errors.As(err, &verr) {
		t.Fatalf("unknown assignee: expected ValidationError, got %v", err)
	}
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Volunteer.ID, false); !errors.As(err, &verr) {
		t.Fatalf("volunteer assignee: expected ValidationError, got %v", err)
	}

	p, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Worker.ID, false)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if p.AssignedTo == nil || *p.AssignedTo != env.Worker.ID {
		t.Fatalf("assignee not recorded")
	}
	if p.Status != domain.ProblemInProgress {
		t.Fatalf("assignment must move open problems to in-progress, got %s", p.Status)
	}

	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Reporter.ID, false); !errors.As(err, &invalid) {
		t.Fatalf("double assign: expected InvalidStateError, got %v", err)
	}
	p, err = env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Reporter.ID, true)
	if err != nil {
		t.Fatalf("forced reassign: %v", err)
	}
	if p.AssignedTo == nil || *p.AssignedTo != env.Reporter.ID {
		t.Fatalf("forced reassign not recorded")
	}
}

func TestCompletionFlow(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Worker.ID, false); err != nil {
		t.Fatal(err)
	}

	var forbidden auth.ForbiddenError
	if _, err := env.Engine.MarkComplete(env.Ctx, env.Reporter, p.ID, "done"); !errors.As(err, &forbidden) {
		t.Fatalf("non-assignee: expected ForbiddenError, got %v", err)
	}
	var verr engine.ValidationError
	if _, err := env.Engine.MarkComplete(env.Ctx, env.Worker, p.ID, ""); !errors.As(err, &verr) {
		t.Fatalf("empty message: expected ValidationError, got %v", err)
	}

	p, err := env.Engine.MarkComplete(env.Ctx, env.Worker, p.ID, "replaced the pump head")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !p.CompletedByAssignee || p.CompletionMessage == nil || *p.CompletionMessage != "replaced the pump head" {
		t.Fatalf("completion claim not recorded: %+v", p)
	}
	if p.CompletionVerified {
		t.Fatalf("completion must await admin confirmation")
	}
	var invalid engine.InvalidStateError
	if _, err := env.Engine.MarkComplete(env.Ctx, env.Worker, p.ID, "again"); !errors.As(err, &invalid) {
		t.Fatalf("repeat complete: expected InvalidStateError, got %v", err)
	}

	p, err = env.Engine.VerifyCompletion(env.Ctx, env.Admin, p.ID)
	if err != nil {
		t.Fatalf("verify completion: %v", err)
	}
	if !p.CompletionVerified || p.Status != domain.ProblemResolved {
		t.Fatalf("expected resolved problem, got %+v", p)
	}

	// repeating the confirmation succeeds without a second event
	again, err := env.Engine.VerifyCompletion(env.Ctx, env.Admin, p.ID)
	if err != nil {
		t.Fatalf("repeat verify completion: %v", err)
	}
	if again.Status != domain.ProblemResolved {
		t.Fatalf("repeat must return the resolved problem")
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "problem.completion.verified", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected exactly one confirmation event, got %d", len(evts))
	}
}

func TestVerifyCompletionWithoutClaim(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	_, err := env.Engine.VerifyCompletion(env.Ctx, env.Admin, p.ID)
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestStatusTransitionsAreFree(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	// admins may move status in any order, including backwards
	for _, status := range []string{
		domain.ProblemResolved, domain.ProblemOpen, domain.ProblemClosed, domain.ProblemInProgress,
	} {
		var err error
		p, err = env.Engine.SetProblemStatus(env.Ctx, env.Admin, p.ID, status)
		if err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
		if p.Status != status {
			t.Fatalf("expected %s, got %s", status, p.Status)
		}
	}
	var verr engine.ValidationError
	if _, err := env.Engine.SetProblemStatus(env.Ctx, env.Admin, p.ID, "paused"); !errors.As(err, &verr) {
		t.Fatalf("unknown status: expected ValidationError, got %v", err)
	}
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.SetProblemStatus(env.Ctx, env.Reporter, p.ID, domain.ProblemClosed); !errors.As(err, &forbidden) {
		t.Fatalf("villager status change: expected ForbiddenError, got %v", err)
	}
}

func TestUpvoteIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	p, err := env.Engine.UpvoteProblem(env.Ctx, env.Worker, p.ID)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if p.Upvotes != 1 {
		t.Fatalf("expected 1 upvote, got %d", p.Upvotes)
	}
	p, err = env.Engine.UpvoteProblem(env.Ctx, env.Worker, p.ID)
	if err != nil {
		t.Fatalf("repeat upvote: %v", err)
	}
	if p.Upvotes != 1 {
		t.Fatalf("repeat vote must not change the count, got %d", p.Upvotes)
	}
	p, err = env.Engine.UpvoteProblem(env.Ctx, env.Volunteer, p.ID)
	if err != nil {
		t.Fatalf("second voter: %v", err)
	}
	if p.Upvotes != 2 {
		t.Fatalf("expected 2 upvotes, got %d", p.Upvotes)
	}
	got, err := env.Engine.Repo.GetProblem(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.UpvoterIDs) != 2 {
		t.Fatalf("expected 2 voter ids, got %v", got.UpvoterIDs)
	}
	for _, want := range []string{env.Worker.ID, env.Volunteer.ID} {
		if !slices.Contains(got.UpvoterIDs, want) {
			t.Fatalf("voter %s missing from %v", want, got.UpvoterIDs)
		}
	}
	var createdAt string
	err = env.Engine.DB.QueryRowContext(env.Ctx, `SELECT created_at FROM votes WHERE entity_id=? AND user_id=?`, p.ID, env.Worker.ID).Scan(&createdAt)
	if err != nil {
		t.Fatalf("vote row: %v", err)
	}
	if createdAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("vote timestamp must come from the engine clock, got %s", createdAt)
	}
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.UpvoteProblem(env.Ctx, domain.Identity{}, p.ID); !errors.As(err, &forbidden) {
		t.Fatalf("anonymous vote: expected ForbiddenError, got %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "problem.upvoted", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected one event per distinct voter, got %d", len(evts))
	}
}

func TestSolutionWorkflow(t *testing.T) {
	env := newTestEnv(t)
	unverified := env.report(t)
	var invalid engine.InvalidStateError
	_, err := env.Engine.ProposeSolution(env.Ctx, env.Volunteer, engine.SolutionProposeOptions{
		ProblemID: unverified.ID, Title: "New pump", Description: "Install a replacement",
	})
	if !errors.As(err, &invalid) {
		t.Fatalf("propose on unverified: expected InvalidStateError, got %v", err)
	}

	p := env.reportVerified(t)
	var forbidden auth.ForbiddenError
	_, err = env.Engine.ProposeSolution(env.Ctx, env.Reporter, engine.SolutionProposeOptions{
		ProblemID: p.ID, Title: "New pump", Description: "Install a replacement",
	})
	if !errors.As(err, &forbidden) {
		t.Fatalf("villager propose: expected ForbiddenError, got %v", err)
	}

	cost := -10
	var verr engine.ValidationError
	_, err = env.Engine.ProposeSolution(env.Ctx, env.Volunteer, engine.SolutionProposeOptions{
		ProblemID: p.ID, Title: "New pump", Description: "Install a replacement", EstimatedCost: &cost,
	})
	if !errors.As(err, &verr) {
		t.Fatalf("negative cost: expected ValidationError, got %v", err)
	}

	cost = 1200
	s, err := env.Engine.ProposeSolution(env.Ctx, env.Volunteer, engine.SolutionProposeOptions{
		ProblemID:     p.ID,
		Title:         "New pump",
		Description:   "Install a replacement",
		EstimatedCost: &cost,
		EstimatedTime: "2 days",
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if s.Status != domain.SolutionPending {
		t.Fatalf("new solutions start pending, got %s", s.Status)
	}

	if _, err := env.Engine.ModerateSolution(env.Ctx, env.Volunteer, s.ID, domain.SolutionApproved); !errors.As(err, &forbidden) {
		t.Fatalf("volunteer moderate: expected ForbiddenError, got %v", err)
	}
	s, err = env.Engine.ModerateSolution(env.Ctx, env.Admin, s.ID, domain.SolutionApproved)
	if err != nil || s.Status != domain.SolutionApproved {
		t.Fatalf("approve: %v", err)
	}
	// moderation transitions carry no ordering constraint
	s, err = env.Engine.ModerateSolution(env.Ctx, env.Admin, s.ID, domain.SolutionPending)
	if err != nil || s.Status != domain.SolutionPending {
		t.Fatalf("back to pending: %v", err)
	}

	if _, err := env.Engine.ListSolutions(env.Ctx, env.Reporter, repo.SolutionFilters{}); !errors.As(err, &forbidden) {
		t.Fatalf("villager list: expected ForbiddenError, got %v", err)
	}
	items, err := env.Engine.ListSolutions(env.Ctx, env.Volunteer, repo.SolutionFilters{ProblemID: p.ID})
	if err != nil || len(items) != 1 {
		t.Fatalf("volunteer list: %v (%d items)", err, len(items))
	}

	// any authenticated user may upvote a solution
	s, err = env.Engine.UpvoteSolution(env.Ctx, env.Reporter, s.ID)
	if err != nil || s.Upvotes != 1 {
		t.Fatalf("villager solution vote: %v", err)
	}
}

func TestListAssigned(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Worker.ID, false); err != nil {
		t.Fatal(err)
	}
	mine, err := env.Engine.ListAssigned(env.Ctx, env.Worker, 10)
	if err != nil || len(mine) != 1 {
		t.Fatalf("worker assigned: %v (%d items)", err, len(mine))
	}
	other, err := env.Engine.ListAssigned(env.Ctx, env.Reporter, 10)
	if err != nil || len(other) != 0 {
		t.Fatalf("reporter assigned: %v (%d items)", err, len(other))
	}
	if _, err := env.Engine.ListAssigned(env.Ctx, domain.Identity{}, 10); err == nil {
		t.Fatalf("anonymous assigned listing must fail")
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.RegisterUser(env.Ctx, engine.UserRegisterOptions{
		Name:     "Nina",
		Email:    "Nina@Riverbend.Test",
		Password: "longenough",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != domain.RoleVillager {
		t.Fatalf("default role must be villager, got %s", u.Role)
	}
	if u.Email != "nina@riverbend.test" {
		t.Fatalf("email must be lowercased, got %s", u.Email)
	}

	var verr engine.ValidationError
	cases := []engine.UserRegisterOptions{
		{Name: "Dup", Email: "nina@riverbend.test", Password: "longenough"},
		{Name: "Short", Email: "short@riverbend.test", Password: "short"},
		{Name: "NoAt", Email: "not-an-email", Password: "longenough"},
		{Name: "Sneaky", Email: "sneaky@riverbend.test", Password: "longenough", Role: domain.RoleAdmin},
	}
	for _, opts := range cases {
		if _, err := env.Engine.RegisterUser(env.Ctx, opts); !errors.As(err, &verr) {
			t.Errorf("register %s: expected ValidationError, got %v", opts.Email, err)
		}
	}

	if _, err := env.Engine.Authenticate(env.Ctx, "nina@riverbend.test", "longenough"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nina@riverbend.test", "wrongpass"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("bad password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "missing@riverbend.test", "longenough"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSetUserRole(t *testing.T) {
	env := newTestEnv(t)
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.SetUserRole(env.Ctx, env.Reporter, env.Worker.ID, domain.RoleVolunteer); !errors.As(err, &forbidden) {
		t.Fatalf("villager set-role: expected ForbiddenError, got %v", err)
	}
	u, err := env.Engine.SetUserRole(env.Ctx, env.Admin, env.Worker.ID, domain.RoleVolunteer)
	if err != nil || u.Role != domain.RoleVolunteer {
		t.Fatalf("promote: %v", err)
	}
	// same role is a no-op and must not append an event
	if _, err := env.Engine.SetUserRole(env.Ctx, env.Admin, env.Worker.ID, domain.RoleVolunteer); err != nil {
		t.Fatalf("no-op set-role: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "user.role.updated", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one role event, got %d", len(evts))
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Worker.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MarkComplete(env.Ctx, env.Worker, p.ID, "done"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.VerifyCompletion(env.Ctx, env.Admin, p.ID); err != nil {
		t.Fatal(err)
	}
	env.report(t)

	var forbidden auth.ForbiddenError
	if _, err := env.Engine.Stats(env.Ctx, env.Reporter); !errors.As(err, &forbidden) {
		t.Fatalf("villager stats: expected ForbiddenError, got %v", err)
	}
	st, err := env.Engine.Stats(env.Ctx, env.Admin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalUsers != 4 || st.TotalProblems != 2 || st.SolvedProblems != 1 || st.UnsolvedProblems != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	p := env.reportVerified(t)
	if _, err := env.Engine.AssignProblem(env.Ctx, env.Admin, p.ID, env.Worker.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.MarkComplete(env.Ctx, env.Worker, p.ID, "done"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.VerifyCompletion(env.Ctx, env.Admin, p.ID); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "", "problem", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool, len(evts))
	for _, ev := range evts {
		seen[ev.Type] = true
	}
	for _, want := range []string{
		"problem.reported", "problem.verified", "problem.assigned",
		"problem.completed", "problem.completion.verified",
	} {
		if !seen[want] {
			t.Errorf("missing event %s", want)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := engine.HashPassword("longenough")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !engine.VerifyPassword(hash, "longenough") {
		t.Fatalf("expected match")
	}
	if engine.VerifyPassword(hash, "otherpass") {
		t.Fatalf("expected mismatch")
	}
	second, err := engine.HashPassword("longenough")
	if err != nil {
		t.Fatal(err)
	}
	if hash == second {
		t.Fatalf("hashes must be salted")
	}
}
