// licensectl creates, revokes and lists licenses directly against the
// database, for operators who do not want to go through the HTTP admin
// surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phonetool/license-server/internal/domain/license"
	"github.com/phonetool/license-server/internal/service"
	"github.com/phonetool/license-server/internal/storage/postgres"
	"go.uber.org/zap"
)

func main() {
	action := flag.String("action", "", "create | revoke | list")
	owner := flag.String("owner", "", "Owner name/email (create)")
	plan := flag.String("plan", "manual", "Plan label (create)")
	duration := flag.String("duration", "lifetime", "Duration plan: lifetime/1month/3months/6months (create)")
	maxActivations := flag.Int("max", 1, "Max activations, 0 = unlimited (create)")
	key := flag.String("key", "", "License key (revoke)")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewLicenseRepository(pool, logger)
	admin := service.NewAdminService(repo, logger)

	switch *action {
	case "create":
		if *owner == "" {
			log.Fatal("-owner is required for create")
		}
		created, err := admin.CreateLicense(ctx, *owner, *plan, *duration, *maxActivations)
		if err != nil {
			log.Fatalf("Failed to create license: %v", err)
		}
		fmt.Println("License created:", created.LicenseKey)
		if created.ExpiresAt.Valid {
			fmt.Println("Expires at:", created.ExpiresAt.Time.Format("2006-01-02 15:04:05 MST"))
		} else {
			fmt.Println("Expires at: never (lifetime)")
		}

	case "revoke":
		if *key == "" {
			log.Fatal("-key is required for revoke")
		}
		if err := admin.RevokeLicense(ctx, *key); err != nil {
			if errors.Is(err, license.ErrNotFound) {
				fmt.Println("License not found")
				os.Exit(1)
			}
			log.Fatalf("Failed to revoke license: %v", err)
		}
		fmt.Println("License revoked:", *key)

	case "list":
		overviews, err := admin.ListLicenses(ctx)
		if err != nil {
			log.Fatalf("Failed to list licenses: %v", err)
		}
		for _, overview := range overviews {
			lic := overview.License
			expires := "never"
			if lic.ExpiresAt.Valid {
				expires = lic.ExpiresAt.Time.Format("2006-01-02")
			}
			fmt.Printf("%s  owner=%s plan=%s active=%t expires=%s activations=%d/%d\n",
				lic.LicenseKey,
				lic.Owner.String,
				lic.Plan.String,
				lic.Active,
				expires,
				overview.Activations,
				lic.MaxActivations,
			)
		}

	default:
		fmt.Fprintln(os.Stderr, "usage: licensectl -action create|revoke|list [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}
}
