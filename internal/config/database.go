// internal/config/database.go
package config

import (
	"fmt"
)

// DSN is the SQLite path as-is, or a keyword DSN for postgres with times kept in UTC.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}
