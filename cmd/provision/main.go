package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"mci-backend/internal/application/provisioning"
	"mci-backend/internal/config"
	"mci-backend/internal/domain"
	"mci-backend/internal/identity"
	"mci-backend/internal/infrastructure/database"
	"mci-backend/internal/infrastructure/localauth"
	"mci-backend/internal/infrastructure/supabase"
	"mci-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"golang.org/x/term"
)

// provision creates a confirmed account directly, bypassing the invite and
// code-verification flow. Operator tooling for bootstrapping admins and
// backfilling accounts.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var provider identity.Provider
	if cfg.SupabaseURL != "" {
		provider = &supabase.Client{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey}
	} else {
		if err := localauth.Migrate(db); err != nil {
			return fmt.Errorf("migrate auth: %w", err)
		}
		provider = localauth.New(db)
	}

	in := bufio.NewReader(os.Stdin)

	localPart := prompt(in, "Email (local part, @"+cfg.EmailDomain+" appended): ")
	email := localPart
	if !strings.Contains(email, "@") {
		email = localPart + "@" + cfg.EmailDomain
	}
	if localPart == "" {
		return fmt.Errorf("email is required")
	}

	fullName := prompt(in, "Full name: ")
	if !validation.IsValidFullName(fullName) {
		return fmt.Errorf("full name is required")
	}

	phone := validation.NormalizePhone(prompt(in, "Phone (optional): "))

	role := strings.ToLower(prompt(in, "Role [admin/client] (default client): "))
	if role == "" {
		role = string(domain.RoleClient)
	}
	if !domain.Role(role).Valid() {
		return fmt.Errorf("role must be admin or client")
	}
	appRole := domain.AppRoleViewer
	if role == string(domain.RoleAdmin) {
		appRole = domain.AppRoleAdmin
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	if !validation.IsValidPassword(password) {
		return fmt.Errorf("password must be at least 6 characters with a digit, an uppercase letter and a symbol")
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	ctx := context.Background()

	fmt.Println("Creating identity...")
	ident, err := provider.AdminCreateUser(ctx, identity.SignUpInput{
		Email:    email,
		Password: password,
		Phone:    phone,
		Metadata: map[string]any{"full_name": fullName, "phone": phone},
	})
	if err != nil {
		return fmt.Errorf("identity creation: %w", err)
	}
	fmt.Println("  identity:", ident.ID)

	identityID, err := uuid.Parse(ident.ID)
	if err != nil {
		return fmt.Errorf("provider returned malformed identity id: %w", err)
	}

	fmt.Println("Provisioning authorization rows...")
	reconciler := &provisioning.Reconciler{Store: &provisioning.Store{DB: db}}
	report := reconciler.Reconcile(ctx, provisioning.Input{
		IdentityID: identityID,
		FullName:   fullName,
		Email:      email,
		Phone:      phone,
		Role:       domain.Role(role),
		AppRole:    appRole,
	})
	printOutcome("profile", report.Profile, report.ProfileErr)
	printOutcome("user record", report.UserRecord, report.UserRecordErr)
	if report.ProfileErr != nil || report.UserRecordErr != nil {
		return fmt.Errorf("provisioning incomplete; re-run to retry")
	}

	fmt.Printf("Done. %s can sign in at %s\n", email, cfg.InviteBaseURL)
	return nil
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("password read: %w", err)
	}
	return string(b), nil
}

func printOutcome(name string, outcome provisioning.InsertOutcome, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "  %s: FAILED: %v\n", name, err)
	case outcome == provisioning.AlreadyExists:
		fmt.Printf("  %s: already present\n", name)
	default:
		fmt.Printf("  %s: created\n", name)
	}
}
