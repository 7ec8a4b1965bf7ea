package server

import (
	"encoding/json"

	"villagedesk/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty" enum:"villager,volunteer"`
	Phone    string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type ReportProblemRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
}

type AssignProblemRequest struct {
	AssignedTo string `json:"assigned_to"`
}

type SetProblemStatusRequest struct {
	Status string `json:"status" enum:"open,in-progress,resolved,closed"`
}

type CompleteProblemRequest struct {
	Message string `json:"message"`
}

type ProposeSolutionRequest struct {
	ID            *string `json:"id,omitempty"`
	ProblemID     string  `json:"problem_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	EstimatedCost *int    `json:"estimated_cost,omitempty"`
	EstimatedTime *string `json:"estimated_time,omitempty"`
}

type ModerateSolutionRequest struct {
	Status string `json:"status" enum:"pending,approved,rejected,implemented"`
}

type SetUserRoleRequest struct {
	Role string `json:"role" enum:"villager,volunteer,admin"`
}

// Responses

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type MeResponse struct {
	UserResponse
	AuthSource string `json:"auth_source"`
}

type ProblemResponse struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Category           string  `json:"category"`
	Priority           string  `json:"priority"`
	Status             string  `json:"status"`
	IsVerified         bool    `json:"is_verified"`
	AssignedTo         *string `json:"assigned_to,omitempty"`
	IsCompleted        bool    `json:"is_completed_by_villager"`
	CompletionMessage  *string `json:"completion_message,omitempty"`
	CompletionVerified bool    `json:"completion_verified"`
	ReportedBy         string  `json:"reported_by"`
	Upvotes            int     `json:"upvotes"`
	Voted              bool    `json:"voted"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

type SolutionResponse struct {
	ID            string  `json:"id"`
	ProblemID     string  `json:"problem_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	EstimatedCost *int    `json:"estimated_cost,omitempty"`
	EstimatedTime *string `json:"estimated_time,omitempty"`
	Status        string  `json:"status"`
	ProposedBy    string  `json:"proposed_by"`
	Upvotes       int     `json:"upvotes"`
	Voted         bool    `json:"voted"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type StatsResponse struct {
	TotalUsers       int `json:"total_users"`
	TotalProblems    int `json:"total_problems"`
	SolvedProblems   int `json:"solved_problems"`
	UnsolvedProblems int `json:"unsolved_problems"`
}

type paginatedProblems struct {
	Items      []ProblemResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedSolutions struct {
	Items []SolutionResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Mappers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// votedBy reports whether callerID is in the voter set. Anonymous callers
// have an empty ID and never match.
func votedBy(voters []string, callerID string) bool {
	if callerID == "" {
		return false
	}
	for _, id := range voters {
		if id == callerID {
			return true
		}
	}
	return false
}

func problemResponse(p domain.Problem, callerID string) ProblemResponse {
	return ProblemResponse{
		ID:                 p.ID,
		Title:              p.Title,
		Description:        p.Description,
		Category:           p.Category,
		Priority:           p.Priority,
		Status:             p.Status,
		IsVerified:         p.Verified,
		AssignedTo:         p.AssignedTo,
		IsCompleted:        p.CompletedByAssignee,
		CompletionMessage:  p.CompletionMessage,
		CompletionVerified: p.CompletionVerified,
		ReportedBy:         p.ReportedBy,
		Upvotes:            p.Upvotes,
		Voted:              votedBy(p.UpvoterIDs, callerID),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func solutionResponse(s domain.Solution, callerID string) SolutionResponse {
	return SolutionResponse{
		ID:            s.ID,
		ProblemID:     s.ProblemID,
		Title:         s.Title,
		Description:   s.Description,
		EstimatedCost: s.EstimatedCost,
		EstimatedTime: s.EstimatedTime,
		Status:        s.Status,
		ProposedBy:    s.ProposedBy,
		Upvotes:       s.Upvotes,
		Voted:         votedBy(s.UpvoterIDs, callerID),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func eventResponse(evt domain.Event) EventResponse {
	var payload map[string]any
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

func mapProblems(items []domain.Problem, callerID string) []ProblemResponse {
	res := make([]ProblemResponse, 0, len(items))
	for _, p := range items {
		res = append(res, problemResponse(p, callerID))
	}
	return res
}

func mapSolutions(items []domain.Solution, callerID string) []SolutionResponse {
	res := make([]SolutionResponse, 0, len(items))
	for _, s := range items {
		res = append(res, solutionResponse(s, callerID))
	}
	return res
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}
