package domain

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email" format:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role" enum:"villager,volunteer,admin"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Identity is the resolved caller of an operation. Role is read fresh from
// the users table on every request, not trusted from the token.
type Identity struct {
	ID   string
	Name string
	Role string
}

type Problem struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Category            string   `json:"category" enum:"infrastructure,health,education,agriculture,water,electricity,transport,other"`
	Priority            string   `json:"priority" enum:"low,medium,high,urgent"`
	Status              string   `json:"status" enum:"open,in-progress,resolved,closed"`
	Verified            bool     `json:"is_verified"`
	AssignedTo          *string  `json:"assigned_to,omitempty"`
	CompletedByAssignee bool     `json:"is_completed_by_villager"`
	CompletionMessage   *string  `json:"completion_message,omitempty"`
	CompletionVerified  bool     `json:"completion_verified"`
	ReportedBy          string   `json:"reported_by"`
	Upvotes             int      `json:"upvotes"`
	UpvoterIDs          []string `json:"-"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

type Solution struct {
	ID            string   `json:"id"`
	ProblemID     string   `json:"problem_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	EstimatedCost *int     `json:"estimated_cost,omitempty"`
	EstimatedTime *string  `json:"estimated_time,omitempty"`
	Status        string   `json:"status" enum:"pending,approved,rejected,implemented"`
	ProposedBy    string   `json:"proposed_by"`
	Upvotes       int      `json:"upvotes"`
	UpvoterIDs    []string `json:"-"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Stats struct {
	TotalUsers       int `json:"total_users"`
	TotalProblems    int `json:"total_problems"`
	SolvedProblems   int `json:"solved_problems"`
	UnsolvedProblems int `json:"unsolved_problems"`
}

const (
	RoleVillager  = "villager"
	RoleVolunteer = "volunteer"
	RoleAdmin     = "admin"
)

const (
	ProblemOpen       = "open"
	ProblemInProgress = "in-progress"
	ProblemResolved   = "resolved"
	ProblemClosed     = "closed"
)

const (
	SolutionPending     = "pending"
	SolutionApproved    = "approved"
	SolutionRejected    = "rejected"
	SolutionImplemented = "implemented"
)

var Roles = []string{RoleVillager, RoleVolunteer, RoleAdmin}

var ProblemStatuses = []string{ProblemOpen, ProblemInProgress, ProblemResolved, ProblemClosed}

var SolutionStatuses = []string{SolutionPending, SolutionApproved, SolutionRejected, SolutionImplemented}

var Categories = []string{"infrastructure", "health", "education", "agriculture", "water", "electricity", "transport", "other"}

var Priorities = []string{"low", "medium", "high", "urgent"}

func ValidRole(r string) bool           { return contains(Roles, r) }
func ValidProblemStatus(s string) bool  { return contains(ProblemStatuses, s) }
func ValidSolutionStatus(s string) bool { return contains(SolutionStatuses, s) }
func ValidCategory(c string) bool       { return contains(Categories, c) }
func ValidPriority(p string) bool       { return contains(Priorities, p) }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
