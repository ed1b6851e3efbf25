package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/config"
	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/keygen"
	"github.com/signet-auth/signet-api/internal/scope"
	"github.com/signet-auth/signet-api/internal/service"
	"github.com/signet-auth/signet-api/internal/storage/postgres"
)

// Bootstrap tool: issues the first management key for an organization
// directly against the database, bypassing the HTTP surface. The secret
// is printed once and never retrievable afterwards.
func main() {
	subject := flag.String("subject", "", "Subject (organization or user id) the key is bound to")
	subjectType := flag.String("subject-type", "organization", "Subject type: organization or user")
	name := flag.String("name", "bootstrap management key", "Human-readable key name")
	scopesFlag := flag.String("scopes", strings.Join([]string{scope.ManagementRead, scope.ManagementWrite}, ","), "Comma-separated scopes")
	flag.Parse()

	if *subject == "" {
		log.Fatal("-subject is required")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	logger := zap.NewNop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPgxPool(ctx, &config.DatabaseConfig{
		URL:             dbURL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pool.Close()

	keyRepo := postgres.NewAPIKeyRepository(pool, logger)
	auditRepo := postgres.NewAuditRepository(pool, logger)
	recorder := service.NewAuditRecorder(auditRepo, logger)

	keyService := service.NewAPIKeyService(
		keyRepo,
		keygen.NewGenerator(),
		keygen.NewHasher(os.Getenv("AUTH_HASHPEPPER")),
		nil,
		recorder,
		logger,
	)

	actor := service.Actor{ID: "createapikey-cli", IsAdmin: true}
	key, secret, err := keyService.Create(ctx, actor, service.CreateKeyInput{
		Subject:     *subject,
		SubjectType: apikey.SubjectType(*subjectType),
		Name:        *name,
		Scopes:      strings.Split(*scopesFlag, ","),
	})
	if err != nil {
		log.Fatalf("Failed to create API key: %v", err)
	}

	fmt.Println("API key created.")
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Prefix: %s\n", key.KeyPrefix)
	fmt.Printf("  Scopes: %s\n", strings.Join(key.Scopes, ", "))
	fmt.Printf("  Secret: %s\n", secret)
	fmt.Println("Store the secret now; it cannot be recovered.")
}
