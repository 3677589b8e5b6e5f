package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a plan or checkpoint id does not resolve.
// Absence is always surfaced, never silently defaulted.
type ErrNotFound struct {
	Entity string // "plan" or "checkpoint"
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// ErrFutureSchema is returned when a stored document's schema version
// exceeds the running engine's current version. This is always fatal: the
// document comes from a newer build and must never be silently downgraded.
type ErrFutureSchema struct {
	PlanID  string
	Stored  int
	Current int
}

func (e ErrFutureSchema) Error() string {
	return fmt.Sprintf("plan %s has schema version %d, newer than engine version %d", e.PlanID, e.Stored, e.Current)
}

// IsFutureSchema reports whether err is an ErrFutureSchema.
func IsFutureSchema(err error) bool {
	var fs ErrFutureSchema
	return errors.As(err, &fs)
}

// ErrMigrationConfig marks an invalid migration table: a wildcard-count
// mismatch between rename patterns, or a missing step for an intermediate
// schema version. Surfaced at registration/startup, never at replay time.
type ErrMigrationConfig struct {
	Reason string
}

func (e ErrMigrationConfig) Error() string {
	return "migration configuration: " + e.Reason
}

// IsMigrationConfig reports whether err is an ErrMigrationConfig.
func IsMigrationConfig(err error) bool {
	var mc ErrMigrationConfig
	return errors.As(err, &mc)
}
