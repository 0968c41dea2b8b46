// Package main is a diagnostic tool for database connectivity. It loads the
// normal service configuration, connects, and prints assignment counts by status
// along with access code and audit totals. It exits non-zero on any failure so it
// can gate deployment steps on a reachable, migrated database.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/config"
	"github.com/intelleges/iaos-compliance-platform-sub001/internal/db"
)

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
	if embedded, err := db.Migrations(); err == nil && len(embedded) > 0 {
		fmt.Printf("Latest embedded migration: %s\n", embedded[len(embedded)-1])
	}

	fmt.Println("\n=== ASSIGNMENTS ===")
	var counts []statusCount
	if err := database.Select(&counts, `SELECT status, COUNT(*) AS count FROM assignments GROUP BY status ORDER BY status`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if len(counts) == 0 {
		fmt.Println("No assignments found!")
	}
	for _, c := range counts {
		fmt.Printf("%-12s %d\n", c.Status, c.Count)
	}

	fmt.Println("\n=== ACCESS CODES ===")
	var active, used int
	if err := database.QueryRow(`SELECT
			COUNT(*) FILTER (WHERE NOT used AND expires_at > now()),
			COUNT(*) FILTER (WHERE used)
		FROM access_codes`).Scan(&active, &used); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("active: %d  used: %d\n", active, used)

	fmt.Println("\n=== AUDIT LOG ===")
	var total, cui int
	if err := database.QueryRow(`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_cui_access) FROM audit_logs`).Scan(&total, &cui); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("entries: %d  cui: %d\n", total, cui)
}
