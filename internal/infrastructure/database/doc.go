// Package database provides SQLite connection management and schema
// migrations for Occulog Core.
//
// The database stores the persisted per-device light state and the
// application settings blob, both through the key-value settings table
// managed by the store package.
//
// # Features
//
//   - WAL mode for concurrent reads during writes
//   - Embedded migrations applied at startup (see the migrations package)
//   - Health checks for monitoring
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: "data/occulog.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
