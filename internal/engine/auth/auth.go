// Package auth holds the role/operation gate consulted before every
// state-mutating call. The gate is a static table so it can be tested
// exhaustively; identity-level checks (assignee match, reporter match)
// stay with the operations that own the entity.
package auth

import "fmt"

// ForbiddenError indicates the caller may not perform an operation, either
// because of their role or because of an identity-level check such as the
// assignee match on completion. Reason, when set, overrides the generic
// role message.
type ForbiddenError struct {
	Role      string
	Operation string
	Reason    string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	role := e.Role
	if role == "" {
		role = "anonymous"
	}
	return fmt.Sprintf("role %s may not perform %s", role, e.Operation)
}

const (
	OpReportProblem    = "problem.report"
	OpVerifyProblem    = "problem.verify"
	OpAssignProblem    = "problem.assign"
	OpUpdateStatus     = "problem.status.update"
	OpMarkComplete     = "problem.complete"
	OpVerifyCompletion = "problem.completion.verify"
	OpViewUnverified   = "problem.view.unverified"
	OpProposeSolution  = "solution.propose"
	OpViewSolutions    = "solution.view"
	OpModerateSolution = "solution.moderate"
	OpUpvote           = "upvote"
	OpManageUsers      = "user.manage"
	OpViewStats        = "stats.view"
	OpViewEvents       = "events.view"
	OpTriage           = "triage.view"
)

// allowed maps operation -> roles permitted to perform it.
//
// OpMarkComplete additionally requires the caller to be the assignee and
// OpViewUnverified additionally admits the reporter; both identity checks
// live in the engine.
var allowed = map[string][]string{
	OpReportProblem:    {"villager"},
	OpVerifyProblem:    {"admin"},
	OpAssignProblem:    {"admin"},
	OpUpdateStatus:     {"admin"},
	OpMarkComplete:     {"villager"},
	OpVerifyCompletion: {"admin"},
	OpViewUnverified:   {"admin"},
	OpProposeSolution:  {"volunteer", "admin"},
	OpViewSolutions:    {"volunteer", "admin"},
	OpModerateSolution: {"admin"},
	OpUpvote:           {"villager", "volunteer", "admin"},
	OpManageUsers:      {"admin"},
	OpViewStats:        {"admin"},
	OpViewEvents:       {"admin"},
	OpTriage:           {"admin"},
}

// Check returns nil when role may perform op, otherwise a ForbiddenError.
// It never errors internally and touches no state.
func Check(role, op string) error {
	for _, r := range allowed[op] {
		if r == role {
			return nil
		}
	}
	return ForbiddenError{Role: role, Operation: op}
}
