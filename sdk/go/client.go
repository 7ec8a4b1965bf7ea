package villagedesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal VillageDesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents an account.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// Auth is the register/login response.
type Auth struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Problem represents a reported problem.
type Problem struct {
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

// Solution represents a proposed fix for a problem.
type Solution struct {
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

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProblems wraps problem listings with cursors.
type PaginatedProblems struct {
	Items      []Problem `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Register creates an account and returns a token. The caller keeps the
// token by setting it on BearerToken.
func (c *Client) Register(ctx context.Context, name, email, password, role string) (Auth, error) {
	body := map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
	}
	if role != "" {
		body["role"] = role
	}
	var resp Auth
	err := c.do(ctx, http.MethodPost, "v0/auth/register", body, &resp)
	return resp, err
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (Auth, error) {
	body := map[string]any{"email": email, "password": password}
	var resp Auth
	err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp)
	return resp, err
}

// ReportProblem files a new problem.
func (c *Client) ReportProblem(ctx context.Context, title, description, category, priority string) (Problem, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"category":    category,
		"priority":    priority,
	}
	var resp Problem
	err := c.do(ctx, http.MethodPost, "v0/problems", body, &resp)
	return resp, err
}

// Problems returns a page of problems. Anonymous clients see verified
// problems only.
func (c *Client) Problems(ctx context.Context, limit int, cursor string) (PaginatedProblems, error) {
	endpoint := listEndpoint("v0/problems", limit, cursor)
	var resp PaginatedProblems
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Problem fetches one problem by id.
func (c *Client) Problem(ctx context.Context, id string) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodGet, "v0/problems/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// VerifyProblem marks a report as verified. Admin only.
func (c *Client) VerifyProblem(ctx context.Context, id string) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodPut, "v0/problems/"+url.PathEscape(id)+"/verify", nil, &resp)
	return resp, err
}

// AssignProblem assigns a verified problem to a villager. Admin only.
func (c *Client) AssignProblem(ctx context.Context, id, villagerID string, force bool) (Problem, error) {
	endpoint := "v0/problems/" + url.PathEscape(id) + "/assign"
	if force {
		endpoint += "?force=true"
	}
	var resp Problem
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"assigned_to": villagerID}, &resp)
	return resp, err
}

// SetProblemStatus sets a problem's status. Admin only.
func (c *Client) SetProblemStatus(ctx context.Context, id, status string) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodPut, "v0/problems/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// CompleteProblem records completion of the caller's assigned problem.
func (c *Client) CompleteProblem(ctx context.Context, id, message string) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodPut, "v0/problems/"+url.PathEscape(id)+"/complete", map[string]any{"message": message}, &resp)
	return resp, err
}

// VerifyCompletion confirms a completion claim and resolves the problem.
// Admin only.
func (c *Client) VerifyCompletion(ctx context.Context, id string) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodPut, "v0/problems/"+url.PathEscape(id)+"/verify-completion", nil, &resp)
	return resp, err
}

// UpvoteProblem adds the caller's vote. Voting twice is a no-op.
func (c *Client) UpvoteProblem(ctx context.Context, id string) (Problem, error) {
	var resp Problem
	err := c.do(ctx, http.MethodPost, "v0/problems/"+url.PathEscape(id)+"/upvote", nil, &resp)
	return resp, err
}

// AssignedProblems lists problems assigned to the caller.
func (c *Client) AssignedProblems(ctx context.Context, limit int) ([]Problem, error) {
	endpoint := listEndpoint("v0/problems/assigned/me", limit, "")
	var resp struct {
		Items []Problem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ProposeSolution proposes a fix for a verified problem.
func (c *Client) ProposeSolution(ctx context.Context, problemID, title, description string, estimatedCost *int, estimatedTime string) (Solution, error) {
	body := map[string]any{
		"problem_id":  problemID,
		"title":       title,
		"description": description,
	}
	if estimatedCost != nil {
		body["estimated_cost"] = *estimatedCost
	}
	if estimatedTime != "" {
		body["estimated_time"] = estimatedTime
	}
	var resp Solution
	err := c.do(ctx, http.MethodPost, "v0/solutions", body, &resp)
	return resp, err
}

// ProblemSolutions lists solutions proposed for a problem.
func (c *Client) ProblemSolutions(ctx context.Context, problemID string) ([]Solution, error) {
	var resp struct {
		Items []Solution `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/problems/"+url.PathEscape(problemID)+"/solutions", nil, &resp)
	return resp.Items, err
}

// ModerateSolution sets a solution's status. Admin only.
func (c *Client) ModerateSolution(ctx context.Context, id, status string) (Solution, error) {
	var resp Solution
	err := c.do(ctx, http.MethodPut, "v0/solutions/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// UpvoteSolution adds the caller's vote. Voting twice is a no-op.
func (c *Client) UpvoteSolution(ctx context.Context, id string) (Solution, error) {
	var resp Solution
	err := c.do(ctx, http.MethodPost, "v0/solutions/"+url.PathEscape(id)+"/upvote", nil, &resp)
	return resp, err
}

// Events returns recent audit events. Admin only.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing. Admin only.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := listEndpoint("v0/events", limit, cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func listEndpoint(endpoint string, limit int, cursor string) string {
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
