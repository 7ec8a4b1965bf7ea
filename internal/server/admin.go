package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"villagedesk/internal/engine"
	"villagedesk/internal/engine/auth"
	"villagedesk/internal/repo"
)

// Admin surface: village stats, user management, and triage-ordered
// listings. Everything here is gated on the admin role.
func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Village statistics",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		caller, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.Stats(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{
			TotalUsers:       stats.TotalUsers,
			TotalProblems:    stats.TotalProblems,
			SolvedProblems:   stats.SolvedProblems,
			UnsolvedProblems: stats.UnsolvedProblems,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List users",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:",villager,volunteer,admin"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		caller, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListUsers(ctx, caller, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-user-role",
		Method:      http.MethodPut,
		Path:        "/admin/users/{id}/role",
		Summary:     "Change a user's role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body SetUserRoleRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.SetUserRole(ctx, caller, input.ID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-problems",
		Method:      http.MethodGet,
		Path:        "/admin/problems",
		Summary:     "List problems, triage first",
		Description: "Unverified reports and unconfirmed completion claims sort ahead of everything else.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:",open,in-progress,resolved,closed"`
		Category string `query:"category"`
		Priority string `query:"priority"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedProblems `json:"body"`
	}, error) {
		caller, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Check(caller.Role, auth.OpTriage); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListProblems(ctx, caller, repo.ProblemFilters{
			Status:      input.Status,
			Category:    input.Category,
			Priority:    input.Priority,
			TriageFirst: true,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedProblems `json:"body"`
		}{Body: paginatedProblems{Items: mapProblems(items, caller.ID)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-solutions",
		Method:      http.MethodGet,
		Path:        "/admin/solutions",
		Summary:     "List solutions across problems",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:",pending,approved,rejected,implemented"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedSolutions `json:"body"`
	}, error) {
		caller, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Check(caller.Role, auth.OpTriage); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListSolutions(ctx, caller, repo.SolutionFilters{
			Status: input.Status,
			Limit:  normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedSolutions `json:"body"`
		}{Body: paginatedSolutions{Items: mapSolutions(items, caller.ID)}}, nil
	})
}
