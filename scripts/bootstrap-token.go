// Command bootstrap-token provisions a user and a bearer token for
// local development and operations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tokenledger/tokenledger/internal/auth"
	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/repository"
)

type output struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	TokenID     string   `json:"token_id"`
	Token       string   `json:"token"`
	TokenPrefix string   `json:"token_prefix"`
	Scopes      []string `json:"scopes"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		userID      = flag.String("user-id", "system", "User ID to own the token")
		email       = flag.String("email", "system@tokenledger.local", "User email")
		name        = flag.String("name", "bootstrap", "Token name")
		scopesInput = flag.String("scopes", "chat", "Comma-separated scopes (chat,admin)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	scopes, err := parseScopes(*scopesInput)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := ensureUser(ctx, repo, *userID, *email); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	generated, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}

	token := &model.APIToken{
		ID:        ulid.Make().String(),
		UserID:    *userID,
		TokenHash: generated.Hash,
		Prefix:    generated.Prefix,
		Scopes:    scopes,
		Name:      *name,
		CreatedAt: time.Now().UTC(),
	}

	if err := repo.CreateAPIToken(ctx, token); err != nil {
		fmt.Fprintln(os.Stderr, "create token:", err)
		os.Exit(1)
	}

	out := output{
		UserID:      *userID,
		Email:       *email,
		TokenID:     token.ID,
		Token:       generated.Plaintext,
		TokenPrefix: token.Prefix,
		Scopes:      scopes,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func parseScopes(input string) ([]string, error) {
	if strings.TrimSpace(input) == "" {
		return []string{model.ScopeChat}, nil
	}
	parts := strings.Split(input, ",")
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !isValidScope(scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		scopes = []string{model.ScopeChat}
	}
	return scopes, nil
}

func isValidScope(scope string) bool {
	for _, allowed := range model.ValidScopes {
		if scope == allowed {
			return true
		}
	}
	return false
}

func ensureUser(ctx context.Context, repo *repository.Repository, userID, email string) error {
	existing, err := repo.GetUserByID(ctx, userID)
	if err == nil {
		if existing.Email != email {
			return fmt.Errorf("user %s exists with different email: %s", userID, existing.Email)
		}
		return nil
	}

	byEmail, err := repo.GetUserByEmail(ctx, email)
	if err == nil {
		if byEmail.ID != userID {
			return fmt.Errorf("email %s already used by user %s", email, byEmail.ID)
		}
		return nil
	}

	user := &model.User{
		ID:          userID,
		Email:       email,
		TokensLimit: model.PlanFree.Allowance(),
		PlanType:    model.PlanFree,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
