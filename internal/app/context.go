package app

import (
	"context"

	"villagedesk/internal/config"
	"villagedesk/internal/domain"
	"villagedesk/internal/engine"
)

// ResolveConfig loads villagedesk.yml from the workspace, falling back to
// the built-in default when no config file exists.
func ResolveConfig(workspace, villageName string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		if villageName == "" {
			villageName = "village"
		}
		cfg = config.Default(villageName)
	}
	return cfg, nil
}

// EnsureAdmin seeds an admin account when the database has none.
// Registration never issues admin; this is the only in-band path.
// Reports whether an account was created.
func EnsureAdmin(ctx context.Context, eng engine.Engine, name, email, password string) (domain.User, bool, error) {
	n, err := eng.Repo.CountUsersByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, false, err
	}
	if n > 0 {
		return domain.User{}, false, nil
	}
	u, err := eng.CreateUser(ctx, engine.UserRegisterOptions{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}
