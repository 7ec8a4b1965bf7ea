package engine

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"villagedesk/internal/domain"
	"villagedesk/internal/engine/auth"
	"villagedesk/internal/events"
	"villagedesk/internal/repo"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown email
// or a wrong password. Callers must not distinguish the two cases.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserRegisterOptions are parameters for creating a user account.
type UserRegisterOptions struct {
	ID       string
	Name     string
	Email    string
	Password string
	Role     string
	Phone    string
}

// RegisterUser creates an account through the open registration path.
// Only the roles listed in the config's registration section are
// accepted; admin accounts are seeded out of band.
func (e Engine) RegisterUser(ctx context.Context, opts UserRegisterOptions) (domain.User, error) {
	if e.Config == nil {
		return domain.User{}, errors.New("config not loaded")
	}
	if opts.Role == "" {
		opts.Role = domain.RoleVillager
	}
	if !domain.ValidRole(opts.Role) {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", opts.Role)}
	}
	if !e.Config.RegistrationRole(opts.Role) {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("role %s is not open for registration", opts.Role)}
	}
	return e.createUser(ctx, opts)
}

// CreateUser creates an account with any role, bypassing the registration
// role restriction. Used by the CLI and by admin seeding.
func (e Engine) CreateUser(ctx context.Context, opts UserRegisterOptions) (domain.User, error) {
	if opts.Role == "" {
		opts.Role = domain.RoleVillager
	}
	if !domain.ValidRole(opts.Role) {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", opts.Role)}
	}
	return e.createUser(ctx, opts)
}

func (e Engine) createUser(ctx context.Context, opts UserRegisterOptions) (domain.User, error) {
	if opts.Name == "" {
		return domain.User{}, ValidationError{Field: "name", Reason: "required"}
	}
	if opts.Email == "" {
		return domain.User{}, ValidationError{Field: "email", Reason: "required"}
	}
	if !strings.Contains(opts.Email, "@") {
		return domain.User{}, ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if len(opts.Password) < 8 {
		return domain.User{}, ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	hash, err := HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	u := domain.User{
		ID:        id,
		Name:      opts.Name,
		Email:     strings.ToLower(opts.Email),
		Phone:     opts.Phone,
		Role:      opts.Role,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u, hash); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.User{}, ValidationError{Field: "email", Reason: "already registered"}
		}
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.registered", "user", u.ID, u.ID, events.EventPayload{"role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate resolves an email/password pair to a user.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, hash, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if !VerifyPassword(hash, password) {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// SetUserRole changes a user's role. A no-op change returns the user
// without writing an event.
func (e Engine) SetUserRole(ctx context.Context, caller domain.Identity, userID, role string) (domain.User, error) {
	if err := auth.Check(caller.Role, auth.OpManageUsers); err != nil {
		return domain.User{}, err
	}
	if !domain.ValidRole(role) {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u, err := e.Repo.GetUserTx(ctx, tx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if u.Role == role {
		return u, nil
	}
	if err := e.Repo.UpdateUserRole(ctx, tx, u.ID, role); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.role.updated", "user", u.ID, caller.ID, events.EventPayload{
		"from": u.Role,
		"to":   role,
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	u.Role = role
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context, caller domain.Identity, role string) ([]domain.User, error) {
	if err := auth.Check(caller.Role, auth.OpManageUsers); err != nil {
		return nil, err
	}
	if role != "" && !domain.ValidRole(role) {
		return nil, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	return e.Repo.ListUsers(ctx, role)
}

func (e Engine) Stats(ctx context.Context, caller domain.Identity) (domain.Stats, error) {
	if err := auth.Check(caller.Role, auth.OpViewStats); err != nil {
		return domain.Stats{}, err
	}
	users, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	total, solved, err := e.Repo.CountProblems(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{
		TotalUsers:       users,
		TotalProblems:    total,
		SolvedProblems:   solved,
		UnsolvedProblems: total - solved,
	}, nil
}

// HashPassword returns a salted digest in the form v1$<salt>$<digest>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := sha256.Sum256(append(salt, []byte(password)...))
	return fmt.Sprintf("v1$%s$%s", hex.EncodeToString(salt), hex.EncodeToString(sum[:])), nil
}

// VerifyPassword checks a password against a stored v1 digest.
func VerifyPassword(stored, password string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 || parts[0] != "v1" {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	sum := sha256.Sum256(append(salt, []byte(password)...))
	digest := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(digest), []byte(parts[2])) == 1
}
