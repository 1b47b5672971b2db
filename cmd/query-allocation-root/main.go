package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: query-allocation-root <merkle root | report name>")
	}
	key := strings.TrimSpace(os.Args[1])

	connStr := os.Getenv("DATABASE_DSN")
	if connStr == "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_NAME", "allocations"))
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	fmt.Printf("=== Querying Allocation Report: %s ===\n\n", key)

	fmt.Println("🌳 Reports:")
	reportIDs := queryReports(db, key)

	for _, id := range reportIDs {
		fmt.Printf("\n📦 Allocations of %s:\n", id)
		queryAllocations(db, id)
	}
}

func queryReports(db *sql.DB, key string) []string {
	rows, err := db.Query(`
		SELECT id, run_id, name, merkle_root, maximum_id, deadline, allocation_count, source_path, created_at
		FROM allocation_reports
		WHERE LOWER(merkle_root) = LOWER($1) OR name = $1
		ORDER BY created_at DESC
	`, key)
	if err != nil {
		log.Printf("Error querying allocation_reports: %v", err)
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, runID, name, root, sourcePath, createdAt string
		var maximumID, deadline int64
		var count int
		if err := rows.Scan(&id, &runID, &name, &root, &maximumID, &deadline, &count, &sourcePath, &createdAt); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		ids = append(ids, id)
		fmt.Printf("  ID: %s\n", id)
		fmt.Printf("    Run: %s\n", runID)
		fmt.Printf("    Name: %s\n", name)
		fmt.Printf("    Merkle Root: %s\n", root)
		fmt.Printf("    Maximum ID: %d\n", maximumID)
		fmt.Printf("    Deadline: %d\n", deadline)
		fmt.Printf("    Allocations: %d\n", count)
		fmt.Printf("    Source: %s\n", sourcePath)
		fmt.Printf("    Created At: %s\n", createdAt)
		fmt.Println()
	}
	if err := rows.Err(); err != nil {
		log.Printf("Error reading allocation_reports: %v", err)
	}

	if len(ids) == 0 {
		fmt.Println("  No reports found")
	}
	return ids
}

func queryAllocations(db *sql.DB, reportID string) {
	rows, err := db.Query(`
		SELECT allocation_id, address, amount
		FROM allocation_entries
		WHERE report_id = $1
		ORDER BY allocation_id
	`, reportID)
	if err != nil {
		log.Printf("Error querying allocation_entries: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var address, amount string
		if err := rows.Scan(&id, &address, &amount); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		fmt.Printf("  %6d  %s  %s\n", id, address, amount)
	}
	if err := rows.Err(); err != nil {
		log.Printf("Error reading allocation_entries: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
