package core

import (
	"fmt"
	"os"

	"plancore/internal/infra/persistence/memory"
	"plancore/internal/infra/persistence/postgres"
	"plancore/internal/infra/persistence/sqlite"
	"plancore/pkg/domain"
)

// StorageDriver identifies a persistence backend.
type StorageDriver string

const (
	// StorageMemory keeps all state in process memory.
	StorageMemory StorageDriver = "memory"
	// StorageSQLite persists snapshots to a local SQLite database.
	StorageSQLite StorageDriver = "sqlite"
	// StoragePostgres persists snapshots to PostgreSQL.
	StoragePostgres StorageDriver = "postgres"
)

// OpenPlanStore selects a PlanStore implementation using environment
// variables.
//
//	PLANCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	PLANCORE_SQLITE_PATH: database file when driver=sqlite
//	PLANCORE_POSTGRES_DSN: connection string when driver=postgres
func OpenPlanStore() (domain.PlanStore, func() error, error) {
	driver := os.Getenv("PLANCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), func() error { return nil }, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(os.Getenv("PLANCORE_SQLITE_PATH"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(os.Getenv("PLANCORE_POSTGRES_DSN"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
