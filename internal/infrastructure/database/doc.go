// Package database provides SQLite connectivity for the floor plan service.
//
// It stores building and widget configuration and persisted view states.
// The package manages:
//   - Connection setup with WAL mode and busy timeout
//   - Embedded, versioned schema migrations
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
