// Command vd is the VillageDesk command line. It manages a workspace
// (villagedesk.yml plus a SQLite database under .villagedesk/) and exposes
// the reporting workflow both as subcommands and as an HTTP API via serve.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"villagedesk/internal/app"
	"villagedesk/internal/config"
	"villagedesk/internal/db"
	"villagedesk/internal/domain"
	"villagedesk/internal/engine"
	"villagedesk/internal/migrate"
	"villagedesk/internal/repo"
	"villagedesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vd",
	Short: "VillageDesk community problem tracker",
	Long: `VillageDesk tracks problems reported by villagers, solutions proposed by
volunteers, and the admin workflow that verifies, assigns, and resolves them.

State lives in the workspace: villagedesk.yml holds the village catalog and
.villagedesk/villagedesk.db holds all records. Run "vd init" once per village.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" || cmd.Name() == "help" {
			return nil
		}
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func initConfig() {
	viper.SetEnvPrefix("VILLAGEDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("workspace", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().String("as", "", "act as this user (id or email)")
	rootCmd.PersistentFlags().Bool("force", false, "override guarded operations")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(problemCmd())
	rootCmd.AddCommand(solutionCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
}

// --- helpers -------------------------------------------------------------

func withRepo(ctx context.Context, fn func(r repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(repo.Repo{DB: conn})
}

func withEngine(ctx context.Context, fn func(e engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace, "")
	if err != nil {
		return err
	}
	return fn(engine.New(conn, cfg))
}

// callerIdentity resolves --as to a stored user. Accepts a user id or email.
func callerIdentity(ctx context.Context, e engine.Engine) (domain.Identity, error) {
	as := viper.GetString("as")
	if as == "" {
		return domain.Identity{}, errors.New("--as is required: pass a user id or email")
	}
	u, err := e.Repo.GetUser(ctx, as)
	if errors.Is(err, repo.ErrNotFound) && strings.Contains(as, "@") {
		u, _, err = e.Repo.GetUserByEmail(ctx, as)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Identity{}, fmt.Errorf("unknown user %s", as)
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: u.ID, Name: u.Name, Role: u.Role}, nil
}

// callerOptional is callerIdentity for read paths where anonymous is allowed.
func callerOptional(ctx context.Context, e engine.Engine) (domain.Identity, error) {
	if viper.GetString("as") == "" {
		return domain.Identity{}, nil
	}
	return callerIdentity(ctx, e)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOrTable prints v as JSON when --json is set, otherwise calls render.
func printJSONOrTable(v any, render func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	render()
	return nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	return t
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func renderProblemTable(problems []domain.Problem) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "TITLE", "CATEGORY", "PRIORITY", "STATUS", "VERIFIED", "ASSIGNEE", "VOTES"})
	for _, p := range problems {
		t.AppendRow(table.Row{
			shortID(p.ID), p.Title, p.Category, p.Priority, p.Status,
			yesNo(p.Verified), derefOr(p.AssignedTo, "-"), p.Upvotes,
		})
	}
	t.Render()
}

func renderSolutionTable(solutions []domain.Solution) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "PROBLEM", "TITLE", "STATUS", "PROPOSED BY", "VOTES"})
	for _, s := range solutions {
		t.AppendRow(table.Row{shortID(s.ID), shortID(s.ProblemID), s.Title, s.Status, shortID(s.ProposedBy), s.Upvotes})
	}
	t.Render()
}

// --- init ----------------------------------------------------------------

func initCmd() *cobra.Command {
	var villageName string
	var adminName, adminEmail, adminPassword string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a VillageDesk workspace",
		Long: `Creates villagedesk.yml with the default category catalog, prepares the
.villagedesk/ database, and optionally seeds the first admin account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(villageName)), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			} else {
				fmt.Printf("Keeping existing %s\n", cfgPath)
			}
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				if adminEmail == "" {
					fmt.Println("Workspace ready. Seed an admin with --admin-email to unlock verification and assignment.")
					return nil
				}
				if adminPassword == "" {
					return errors.New("--admin-password is required when seeding an admin")
				}
				u, created, err := app.EnsureAdmin(cmd.Context(), e, adminName, adminEmail, adminPassword)
				if err != nil {
					return err
				}
				if created {
					fmt.Printf("Admin %s <%s> created (id %s)\n", u.Name, u.Email, u.ID)
				} else {
					fmt.Println("An admin already exists; skipping seed.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&villageName, "village", "village", "village name written to villagedesk.yml")
	cmd.Flags().StringVar(&adminName, "admin-name", "Admin", "name for the seeded admin")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "email for the seeded admin")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password for the seeded admin")
	return cmd
}

// --- serve ---------------------------------------------------------------

func serveCmd() *cobra.Command {
	var addr, basePath string
	var tokenTTL time.Duration
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the VillageDesk HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return errors.New("VILLAGEDESK_JWT_SECRET must be set to serve the API")
			}
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:             secret,
						TokenTTL:              tokenTTL,
						AllowLegacyUserHeader: allowLegacy,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-cmd.Context().Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving VillageDesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n",
					addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "JWT lifetime")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-user-header", false, "accept the deprecated X-User-Id header")
	return cmd
}

// --- user ----------------------------------------------------------------

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage village accounts",
	}
	cmd.AddCommand(userRegisterCmd())
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userSetRoleCmd())
	cmd.AddCommand(userShowCmd())
	return cmd
}

func userRegisterCmd() *cobra.Command {
	var name, email, password, role, phone string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user account",
		Long: `Creates an account with any role, including admin. The HTTP registration
endpoint only issues the roles opened in villagedesk.yml; this command is the
operator path around that restriction.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				u, err := e.CreateUser(cmd.Context(), engine.UserRegisterOptions{
					Name:     name,
					Email:    email,
					Password: password,
					Role:     role,
					Phone:    phone,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u, func() {
					fmt.Printf("Registered %s <%s> as %s (id %s)\n", u.Name, u.Email, u.Role, u.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (min 8 chars)")
	cmd.Flags().StringVar(&role, "role", domain.RoleVillager, "villager, volunteer, or admin")
	cmd.Flags().StringVar(&phone, "phone", "", "contact phone")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				users, err := e.ListUsers(cmd.Context(), caller, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(users, func() {
					t := newTable()
					t.AppendHeader(table.Row{"ID", "NAME", "EMAIL", "ROLE", "CREATED"})
					for _, u := range users {
						t.AppendRow(table.Row{shortID(u.ID), u.Name, u.Email, u.Role, u.CreatedAt})
					}
					t.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	return cmd
}

func userSetRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-role <user-id> <role>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				u, err := e.SetUserRole(cmd.Context(), caller, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(u, func() {
					fmt.Printf("%s is now %s\n", u.Name, u.Role)
				})
			})
		},
	}
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(r repo.Repo) error {
				u, err := r.GetUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	return cmd
}

// --- problem -------------------------------------------------------------

func problemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "problem",
		Short: "Report and work village problems",
	}
	cmd.AddCommand(problemReportCmd())
	cmd.AddCommand(problemListCmd())
	cmd.AddCommand(problemShowCmd())
	cmd.AddCommand(problemVerifyCmd())
	cmd.AddCommand(problemAssignCmd())
	cmd.AddCommand(problemStatusCmd())
	cmd.AddCommand(problemCompleteCmd())
	cmd.AddCommand(problemVerifyCompletionCmd())
	cmd.AddCommand(problemUpvoteCmd())
	cmd.AddCommand(problemAssignedCmd())
	return cmd
}

func problemReportCmd() *cobra.Command {
	var title, description, category, priority string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report a problem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.ReportProblem(cmd.Context(), caller, engine.ProblemReportOptions{
					Title:       title,
					Description: description,
					Category:    category,
					Priority:    priority,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() {
					fmt.Printf("Reported %s (id %s). It stays hidden from public listings until an admin verifies it.\n", p.Title, p.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "short summary")
	cmd.Flags().StringVar(&description, "description", "", "what is wrong and where")
	cmd.Flags().StringVar(&category, "category", "", "catalog category id")
	cmd.Flags().StringVar(&priority, "priority", "", "catalog priority")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("priority")
	return cmd
}

func problemListCmd() *cobra.Command {
	var status, category, priority string
	var limit int
	var triage bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List problems",
		Long: `Without --as this lists only verified problems, same as the anonymous API.
Admins additionally see unverified reports; --triage sorts reports awaiting
verification and completion claims awaiting confirmation first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerOptional(cmd.Context(), e)
				if err != nil {
					return err
				}
				problems, err := e.ListProblems(cmd.Context(), caller, repo.ProblemFilters{
					Status:      status,
					Category:    category,
					Priority:    priority,
					Limit:       limit,
					TriageFirst: triage,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(problems, func() { renderProblemTable(problems) })
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows (0 uses the configured page size)")
	cmd.Flags().BoolVar(&triage, "triage", false, "triage ordering (admin only)")
	return cmd
}

func problemShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <problem-id>",
		Short: "Show one problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerOptional(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.GetProblem(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	return cmd
}

func problemVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <problem-id>",
		Short: "Verify a reported problem (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.VerifyProblem(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() {
					fmt.Printf("Problem %s verified; it is now publicly visible and assignable.\n", shortID(p.ID))
				})
			})
		},
	}
	return cmd
}

func problemAssignCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "assign <problem-id>",
		Short: "Assign a verified problem to a villager (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.AssignProblem(cmd.Context(), caller, args[0], to, viper.GetBool("force"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() {
					fmt.Printf("Problem %s assigned to %s (status %s)\n", shortID(p.ID), derefOr(p.AssignedTo, "?"), p.Status)
				})
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "villager user id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func problemStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <problem-id> <status>",
		Short: "Set a problem's status (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.SetProblemStatus(cmd.Context(), caller, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() {
					fmt.Printf("Problem %s is now %s\n", shortID(p.ID), p.Status)
				})
			})
		},
	}
	return cmd
}

func problemCompleteCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "complete <problem-id>",
		Short: "Mark your assigned problem complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.MarkComplete(cmd.Context(), caller, args[0], message)
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() {
					fmt.Printf("Completion recorded for %s; an admin still has to confirm it.\n", shortID(p.ID))
				})
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "what was done")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func problemVerifyCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-completion <problem-id>",
		Short: "Confirm a completion claim and resolve the problem (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.VerifyCompletion(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() {
					fmt.Printf("Problem %s resolved.\n", shortID(p.ID))
				})
			})
		},
	}
	return cmd
}

func problemUpvoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upvote <problem-id>",
		Short: "Upvote a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				p, err := e.UpvoteProblem(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p, func() {
					fmt.Printf("Problem %s has %d upvotes\n", shortID(p.ID), p.Upvotes)
				})
			})
		},
	}
	return cmd
}

func problemAssignedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "assigned",
		Short: "List problems assigned to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				problems, err := e.ListAssigned(cmd.Context(), caller, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(problems, func() { renderProblemTable(problems) })
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

// --- solution ------------------------------------------------------------

func solutionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solution",
		Short: "Propose and moderate solutions",
	}
	cmd.AddCommand(solutionProposeCmd())
	cmd.AddCommand(solutionListCmd())
	cmd.AddCommand(solutionShowCmd())
	cmd.AddCommand(solutionModerateCmd())
	cmd.AddCommand(solutionUpvoteCmd())
	return cmd
}

func solutionProposeCmd() *cobra.Command {
	var problemID, title, description, estimatedTime string
	var estimatedCost int
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a solution for a verified problem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				opts := engine.SolutionProposeOptions{
					ProblemID:     problemID,
					Title:         title,
					Description:   description,
					EstimatedTime: estimatedTime,
				}
				if cmd.Flags().Changed("estimated-cost") {
					opts.EstimatedCost = &estimatedCost
				}
				s, err := e.ProposeSolution(cmd.Context(), caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s, func() {
					fmt.Printf("Solution %s proposed for problem %s (status %s)\n", shortID(s.ID), shortID(s.ProblemID), s.Status)
				})
			})
		},
	}
	cmd.Flags().StringVar(&problemID, "problem", "", "problem id")
	cmd.Flags().StringVar(&title, "title", "", "short summary")
	cmd.Flags().StringVar(&description, "description", "", "how to fix it")
	cmd.Flags().IntVar(&estimatedCost, "estimated-cost", 0, "estimated cost")
	cmd.Flags().StringVar(&estimatedTime, "estimated-time", "", "estimated time, e.g. \"2 days\"")
	_ = cmd.MarkFlagRequired("problem")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func solutionListCmd() *cobra.Command {
	var problemID, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List solutions (volunteer or admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				solutions, err := e.ListSolutions(cmd.Context(), caller, repo.SolutionFilters{
					ProblemID: problemID,
					Status:    status,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(solutions, func() { renderSolutionTable(solutions) })
			})
		},
	}
	cmd.Flags().StringVar(&problemID, "problem", "", "filter by problem id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func solutionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <solution-id>",
		Short: "Show one solution (volunteer or admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				s, err := e.GetSolution(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	return cmd
}

func solutionModerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moderate <solution-id> <status>",
		Short: "Set a solution's status (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				s, err := e.ModerateSolution(cmd.Context(), caller, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(s, func() {
					fmt.Printf("Solution %s is now %s\n", shortID(s.ID), s.Status)
				})
			})
		},
	}
	return cmd
}

func solutionUpvoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upvote <solution-id>",
		Short: "Upvote a solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				s, err := e.UpvoteSolution(cmd.Context(), caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s, func() {
					fmt.Printf("Solution %s has %d upvotes\n", shortID(s.ID), s.Upvotes)
				})
			})
		},
	}
	return cmd
}

// --- stats / log ---------------------------------------------------------

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Village totals (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				caller, err := callerIdentity(cmd.Context(), e)
				if err != nil {
					return err
				}
				st, err := e.Stats(cmd.Context(), caller)
				if err != nil {
					return err
				}
				return printJSONOrTable(st, func() {
					t := newTable()
					t.AppendHeader(table.Row{"USERS", "PROBLEMS", "SOLVED", "UNSOLVED"})
					t.AppendRow(table.Row{st.TotalUsers, st.TotalProblems, st.SolvedProblems, st.UnsolvedProblems})
					t.Render()
				})
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var limit int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(r repo.Repo) error {
				evts, err := r.LatestEvents(cmd.Context(), limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts, func() {
					t := newTable()
					t.AppendHeader(table.Row{"ID", "TS", "TYPE", "ENTITY", "ACTOR", "PAYLOAD"})
					for _, ev := range evts {
						t.AppendRow(table.Row{ev.ID, ev.TS, ev.Type,
							fmt.Sprintf("%s/%s", ev.EntityKind, shortID(ev.EntityID)),
							shortID(ev.ActorID), ev.Payload})
					}
					t.Render()
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max events")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind (problem, solution, user)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	return cmd
}

// --- apikey --------------------------------------------------------------

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for non-interactive clients",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a user",
		Long:  `Prints the plaintext key exactly once; only its SHA-256 hash is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e engine.Engine) error {
				if _, err := e.Repo.GetUser(cmd.Context(), userID); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("unknown user %s", userID)
					}
					return err
				}
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				plaintext := "vdk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.New().String(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(plaintext),
					CreatedAt: e.Now().UTC().Format(time.RFC3339),
				}
				tx, err := e.DB.BeginTx(cmd.Context(), nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.InsertAPIKey(cmd.Context(), tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Printf("API key %s (%s) created.\n", shortID(key.ID), key.Name)
				fmt.Printf("Key (save it now, it is not shown again): %s\n", plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "default", "label for the key")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(r repo.Repo) error {
				keys, err := r.ListAPIKeys(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys, func() {
					t := newTable()
					t.AppendHeader(table.Row{"ID", "NAME", "CREATED"})
					for _, k := range keys {
						t.AppendRow(table.Row{shortID(k.ID), k.Name, k.CreatedAt})
					}
					t.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(r repo.Repo) error {
				if err := r.DeleteAPIKey(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println("API key deleted.")
				return nil
			})
		},
	}
	return cmd
}
