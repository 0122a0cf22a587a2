package postgres

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Open connects the pool and applies connection limits. The pool is the only
// shared resource requiring acquire/release discipline; database/sql handles
// release as long as every rows handle is closed, which the repos do.
func Open(connStr string, maxOpenConns, maxIdleConns, connMaxLifetimeMin int) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Duration(connMaxLifetimeMin) * time.Minute)

	log.Println("Database connected successfully")
	return db, nil
}

// ApplySchema runs the auth-core DDL if the file is present. Business tables
// and stored procedures ship with their own migrations.
func ApplySchema(db *sql.DB, path string) error {
	schema, err := os.ReadFile(path)
	if err != nil {
		log.Printf("No schema file at %s, skipping", path)
		return nil
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %v", err)
	}
	return nil
}
