package auth_test

import (
	"errors"
	"testing"

	"villagedesk/internal/domain"
	"villagedesk/internal/engine/auth"
)

func TestCheckPerOperation(t *testing.T) {
	cases := []struct {
		op      string
		allowed []string
	}{
		{auth.OpReportProblem, []string{domain.RoleVillager}},
		{auth.OpVerifyProblem, []string{domain.RoleAdmin}},
		{auth.OpAssignProblem, []string{domain.RoleAdmin}},
		{auth.OpUpdateStatus, []string{domain.RoleAdmin}},
		{auth.OpMarkComplete, []string{domain.RoleVillager}},
		{auth.OpVerifyCompletion, []string{domain.RoleAdmin}},
		{auth.OpViewUnverified, []string{domain.RoleAdmin}},
		{auth.OpProposeSolution, []string{domain.RoleVolunteer, domain.RoleAdmin}},
		{auth.OpViewSolutions, []string{domain.RoleVolunteer, domain.RoleAdmin}},
		{auth.OpModerateSolution, []string{domain.RoleAdmin}},
		{auth.OpUpvote, []string{domain.RoleVillager, domain.RoleVolunteer, domain.RoleAdmin}},
		{auth.OpManageUsers, []string{domain.RoleAdmin}},
		{auth.OpViewStats, []string{domain.RoleAdmin}},
		{auth.OpViewEvents, []string{domain.RoleAdmin}},
		{auth.OpTriage, []string{domain.RoleAdmin}},
	}
	roles := []string{domain.RoleVillager, domain.RoleVolunteer, domain.RoleAdmin}
	for _, tc := range cases {
		for _, role := range roles {
			want := false
			for _, a := range tc.allowed {
				if a == role {
					want = true
				}
			}
			err := auth.Check(role, tc.op)
			if want && err != nil {
				t.Errorf("%s as %s: unexpected deny: %v", tc.op, role, err)
			}
			if !want && err == nil {
				t.Errorf("%s as %s: expected deny", tc.op, role)
			}
		}
	}
}

func TestCheckUnknownOperation(t *testing.T) {
	if err := auth.Check(domain.RoleAdmin, "problem.delete"); err == nil {
		t.Fatalf("expected deny for unknown operation")
	}
}

func TestCheckAnonymous(t *testing.T) {
	err := auth.Check("", auth.OpUpvote)
	if err == nil {
		t.Fatalf("expected deny for anonymous caller")
	}
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %T", err)
	}
	if forbidden.Operation != auth.OpUpvote {
		t.Fatalf("unexpected operation %q", forbidden.Operation)
	}
}
