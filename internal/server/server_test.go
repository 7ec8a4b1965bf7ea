package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"villagedesk/internal/config"
	"villagedesk/internal/db"
	"villagedesk/internal/domain"
	"villagedesk/internal/engine"
	"villagedesk/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("riverbend"))
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// registerUser creates an account over HTTP and returns its id and token.
func registerUser(t *testing.T, srv *testServer, name, email, role string) (string, string) {
	t.Helper()
	body := map[string]any{"name": name, "email": email, "password": "longenough"}
	if role != "" {
		body["role"] = role
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/register", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, res.StatusCode, string(data))
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	return auth.User.ID, auth.Token
}

// seedAdmin creates an admin in the engine and logs in over HTTP.
// Registration never issues admin accounts.
func seedAdmin(t *testing.T, srv *testServer) (string, string) {
	t.Helper()
	u, err := srv.Engine.CreateUser(context.Background(), engine.UserRegisterOptions{
		Name:     "Asha",
		Email:    "asha@riverbend.test",
		Password: "longenough",
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email": "asha@riverbend.test", "password": "longenough",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin login: %d %s", res.StatusCode, string(data))
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	return u.ID, auth.Token
}

func reportProblem(t *testing.T, srv *testServer, token string) ProblemResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/problems", map[string]any{
		"title":       "Broken hand pump",
		"description": "The pump near the school yields no water.",
		"category":    "water",
		"priority":    "high",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("report: %d %s", res.StatusCode, string(data))
	}
	var p ProblemResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal problem: %v", err)
	}
	return p
}

type errorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func TestRegisterLoginMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, token := registerUser(t, srv, "Ravi", "ravi@riverbend.test", "")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Role != domain.RoleVillager {
		t.Fatalf("default role must be villager, got %s", me.Role)
	}
	if me.AuthSource != "jwt" {
		t.Fatalf("expected jwt auth source, got %s", me.AuthSource)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email": "ravi@riverbend.test", "password": "wrongpass",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %s", env.Code)
	}

	// registering an admin over HTTP is rejected
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/register", map[string]any{
		"name": "Sneaky", "email": "sneaky@riverbend.test", "password": "longenough", "role": "admin",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("admin register: %d %s", res.StatusCode, string(data))
	}
}

func TestProblemLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adminToken := seedAdmin(t, srv)
	_, reporterToken := registerUser(t, srv, "Ravi", "ravi@riverbend.test", "")
	workerID, workerToken := registerUser(t, srv, "Meera", "meera@riverbend.test", "")

	p := reportProblem(t, srv, reporterToken)

	// hidden from the public listing until verified
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("anonymous list: %d %s", res.StatusCode, string(data))
	}
	var page paginatedProblems
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("unverified report leaked to anonymous listing")
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems/"+p.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("anonymous get unverified: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/verify", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("anonymous list after verify: %d %s", res.StatusCode, string(data))
	}
	page = paginatedProblems{}
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 verified problem, got %d", len(page.Items))
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/assign", map[string]any{
		"assigned_to": workerID,
	}, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign: %d %s", res.StatusCode, string(data))
	}
	var assigned ProblemResponse
	_ = json.Unmarshal(data, &assigned)
	if assigned.Status != domain.ProblemInProgress {
		t.Fatalf("assignment must move the problem to in-progress, got %s", assigned.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems/assigned/me", nil, bearer(workerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assigned/me: %d %s", res.StatusCode, string(data))
	}
	page = paginatedProblems{}
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 {
		t.Fatalf("worker must see the assignment, got %d items", len(page.Items))
	}

	// only the assignee may claim completion
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/complete", map[string]any{
		"message": "not mine",
	}, bearer(reporterToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-assignee complete: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/complete", map[string]any{
		"message": "replaced the pump head",
	}, bearer(workerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/verify-completion", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify completion: %d %s", res.StatusCode, string(data))
	}
	var resolved ProblemResponse
	_ = json.Unmarshal(data, &resolved)
	if resolved.Status != domain.ProblemResolved || !resolved.CompletionVerified {
		t.Fatalf("expected resolved problem, got %+v", resolved)
	}

	// repeating the confirmation is not an error
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/verify-completion", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("repeat verify completion: %d %s", res.StatusCode, string(data))
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adminToken := seedAdmin(t, srv)
	workerID, reporterToken := registerUser(t, srv, "Ravi", "ravi@riverbend.test", "")

	p := reportProblem(t, srv, reporterToken)

	// 403 forbidden with the denied operation in details
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/verify", nil, bearer(reporterToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("villager verify: %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Code != "forbidden" {
		t.Fatalf("expected forbidden, got %s", env.Code)
	}
	if op, _ := env.Details["operation"].(string); op != "problem.verify" {
		t.Fatalf("expected operation detail, got %v", env.Details)
	}

	// The envelope keys sit at the top level of the document.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw envelope: %v", err)
	}
	if _, ok := raw["code"]; !ok {
		t.Fatalf("code not at top level: %s", string(data))
	}
	if _, ok := raw["Body"]; ok {
		t.Fatalf("nested body in envelope: %s", string(data))
	}

	// 409 invalid_state for assigning an unverified problem
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/assign", map[string]any{
		"assigned_to": workerID,
	}, bearer(adminToken))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("assign unverified: %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %s", env.Code)
	}

	// 422 validation_failed for a catalog miss
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/problems", map[string]any{
		"title":       "t",
		"description": "d",
		"category":    "plumbing",
		"priority":    "high",
	}, bearer(reporterToken))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad category: %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %s", env.Code)
	}

	// 404 not_found
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems/nope", nil, bearer(adminToken))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing problem: %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Code != "not_found" {
		t.Fatalf("expected not_found, got %s", env.Code)
	}
}

func TestAnonymousWritesRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/problems", map[string]any{
		"title": "t", "description": "d", "category": "water", "priority": "high",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous report: %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Code != "unauthorized" {
		t.Fatalf("expected unauthorized, got %s", env.Code)
	}

	// the legacy header is ignored unless explicitly enabled
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/problems", map[string]any{
		"title": "t", "description": "d", "category": "water", "priority": "high",
	}, map[string]string{"X-User-Id": "someone"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("legacy header: %d %s", res.StatusCode, string(data))
	}
}

func TestSolutionVisibility(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adminToken := seedAdmin(t, srv)
	_, reporterToken := registerUser(t, srv, "Ravi", "ravi@riverbend.test", "")
	_, volunteerToken := registerUser(t, srv, "Tomas", "tomas@riverbend.test", "volunteer")

	p := reportProblem(t, srv, reporterToken)
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/verify", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions", map[string]any{
		"problem_id":  p.ID,
		"title":       "New pump",
		"description": "Install a replacement",
	}, bearer(volunteerToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose: %d %s", res.StatusCode, string(data))
	}
	var s SolutionResponse
	_ = json.Unmarshal(data, &s)

	// villagers do not see the solution workspace
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems/"+p.ID+"/solutions", nil, bearer(reporterToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("villager solutions: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems/"+p.ID+"/solutions", nil, bearer(volunteerToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("volunteer solutions: %d %s", res.StatusCode, string(data))
	}
	var page paginatedSolutions
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 solution, got %d", len(page.Items))
	}

	// but any authenticated user may upvote one
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/solutions/"+s.ID+"/upvote", nil, bearer(reporterToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("villager solution upvote: %d %s", res.StatusCode, string(data))
	}
}

func TestEventsAndAdminSurface(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adminToken := seedAdmin(t, srv)
	_, reporterToken := registerUser(t, srv, "Ravi", "ravi@riverbend.test", "")
	reportProblem(t, srv, reporterToken)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events", nil, bearer(reporterToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("villager events: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin events: %d %s", res.StatusCode, string(data))
	}
	var events paginatedEvents
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events.Items) == 0 {
		t.Fatalf("expected audit events")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/admin/stats", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin stats: %d %s", res.StatusCode, string(data))
	}
	var stats StatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.TotalProblems != 1 {
		t.Fatalf("expected 1 problem in stats, got %d", stats.TotalProblems)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/admin/problems", nil, bearer(reporterToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("villager triage: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/admin/problems", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin triage: %d %s", res.StatusCode, string(data))
	}
}

func TestUpvoteOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, adminToken := seedAdmin(t, srv)
	_, reporterToken := registerUser(t, srv, "Ravi", "ravi@riverbend.test", "")
	_, otherToken := registerUser(t, srv, "Meera", "meera@riverbend.test", "")

	p := reportProblem(t, srv, reporterToken)
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/problems/"+p.ID+"/verify", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", res.StatusCode, string(data))
	}

	upvote := func(token string) ProblemResponse {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/problems/"+p.ID+"/upvote", nil, bearer(token))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("upvote: %d %s", res.StatusCode, string(data))
		}
		var out ProblemResponse
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal upvote: %v", err)
		}
		return out
	}
	if got := upvote(reporterToken); got.Upvotes != 1 || !got.Voted {
		t.Fatalf("expected 1 upvote by the caller, got %d voted=%v", got.Upvotes, got.Voted)
	}
	if got := upvote(reporterToken); got.Upvotes != 1 {
		t.Fatalf("repeat vote changed the count: %d", got.Upvotes)
	}
	if got := upvote(otherToken); got.Upvotes != 2 || !got.Voted {
		t.Fatalf("expected 2 upvotes with the caller among them, got %d voted=%v", got.Upvotes, got.Voted)
	}

	// voted reflects the requesting identity, not the voter set size
	fetch := func(headers map[string]string) ProblemResponse {
		res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/problems/"+p.ID, nil, headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("get problem: %d %s", res.StatusCode, string(data))
		}
		var out ProblemResponse
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal problem: %v", err)
		}
		return out
	}
	if got := fetch(bearer(reporterToken)); !got.Voted {
		t.Fatalf("voter must see voted=true")
	}
	if got := fetch(bearer(adminToken)); got.Voted {
		t.Fatalf("non-voter must see voted=false")
	}
	if got := fetch(nil); got.Voted || got.Upvotes != 2 {
		t.Fatalf("anonymous read: voted=%v upvotes=%d", got.Voted, got.Upvotes)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/problems/"+p.ID+"/upvote", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous upvote: %d %s", res.StatusCode, string(data))
	}
}
