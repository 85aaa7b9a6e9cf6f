package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gate-backend/internal/auth"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Clears gate activity for a test environment. Users and warehouses are
// kept unless -all is given. With an empty users table an IT admin is
// created from BOOTSTRAP_ADMIN_PASSWORD.
func main() {
	all := flag.Bool("all", false, "Also delete users and warehouses")
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("   Reset Gate Database for Testing")
	fmt.Println("========================================")
	fmt.Println()
	fmt.Println("WARNING: This will DELETE gate movements, raw material entries,")
	fmt.Println("imported documents and gate entry counters.")
	if *all {
		fmt.Println("Users and warehouses will be deleted as well.")
	}
	fmt.Println()
	fmt.Print("Type 'yes' to confirm: ")

	var confirm string
	fmt.Scanln(&confirm)

	if confirm != "yes" {
		fmt.Println("Reset cancelled.")
		return
	}

	// Load environment variables
	godotenv.Load()

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "gate_db"),
	)

	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	fmt.Println()
	fmt.Println("Resetting database...")

	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v\n", err)
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"gate_movements",
		"raw_material_entries",
		"documents",
		"gate_entry_sequences",
	}
	if *all {
		tables = append(tables, "users", "warehouses")
	}

	for _, table := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
			log.Fatalf("Failed to truncate %s: %v\n", table, err)
		}
		fmt.Printf("  Cleared %s\n", table)
	}

	var users int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&users); err != nil {
		log.Fatalf("Failed to count users: %v\n", err)
	}
	if users == 0 {
		password := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
		if len(password) < 8 {
			log.Fatalf("No users left; set BOOTSTRAP_ADMIN_PASSWORD (8+ characters) to create an IT admin\n")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			log.Fatalf("Failed to hash password: %v\n", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (username, full_name, password_hash, roles)
			VALUES ($1, $2, $3, 'itadmin')`,
			"itadmin", "IT Administrator", hash,
		); err != nil {
			log.Fatalf("Failed to create admin user: %v\n", err)
		}
		fmt.Println("  Created IT admin user 'itadmin'")
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit transaction: %v\n", err)
	}

	fmt.Println()
	fmt.Println("Database reset successful.")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
