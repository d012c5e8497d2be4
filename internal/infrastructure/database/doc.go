// Package database provides the SQLite connection shared by the boxlink
// cache and settings stores.
//
// It manages:
//   - the connection (WAL mode, busy timeout, single-connection pool)
//   - additive schema migrations loaded from an fs.FS
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLable or carry a DEFAULT, and
// columns are never dropped or renamed.
package database
