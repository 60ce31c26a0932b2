package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/cama-import/internal/config"
)

// Connection holds the database connection
type Connection struct {
	DB *sql.DB
}

// NewConnection creates a new database connection from the PG*
// environment variables.
func NewConnection() (*Connection, error) {
	host := config.GetEnv("PGHOST", "localhost")
	port := config.GetEnv("PGPORT", "5432")
	user := config.GetEnv("PGUSER", "cama")
	password := config.GetEnv("PGPASSWORD", "cama")
	dbname := config.GetEnv("PGDATABASE", "cama_parcels")
	sslmode := config.GetEnv("PGSSLMODE", "disable")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(10)

	return &Connection{DB: conn}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}
