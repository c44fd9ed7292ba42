// Package database provides SQLite database connectivity for contacthub.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded into the binary
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live under the top-level migrations/ directory and are
// named VERSION_description.up.sql / VERSION_description.down.sql, where
// VERSION is YYYYMMDD_HHMMSS. Importing the migrations package registers
// them with this package via MigrationsFS.
package database
