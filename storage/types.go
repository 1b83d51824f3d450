package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nodetrace/models"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

type scanner interface {
	Scan(dest ...any) error
}

func validateHealthStatus(status models.HealthStatus) error {
	switch status {
	case models.HealthStatusUnknown, models.HealthStatusSick:
		return nil
	default:
		return fmt.Errorf("invalid health status %q", status)
	}
}

func nullFloat64(ptr *float64) sql.NullFloat64 {
	if ptr == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *ptr, Valid: true}
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
