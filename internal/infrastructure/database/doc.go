// Package database provides SQLite database connectivity for Aegis Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded into the binary
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Concurrency:
//
// The pool is pinned to one connection (SQLite's single-writer model). Every
// mutation in this system is a single-row, single-statement update, so the
// single writer gives per-token linearizability for free: once an invalidate
// commits, no later validate on that token can succeed.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only; each file has both .up.sql and .down.sql.
package database
