// Package database provides the SQLite connection behind the run ledger.
//
// It covers opening the file with the pragmas the ledger relies on
// (foreign keys, busy timeout, optional WAL) and applying embedded
// schema migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, database.FromLedger(cfg.Ledger.Path, cfg.Ledger.WALMode, cfg.Ledger.BusyTimeout))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each migration is applied in its own
// transaction and recorded in schema_migrations.
package database
