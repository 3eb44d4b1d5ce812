// Package dbtest connects repository tests to live MariaDB and MongoDB
// servers. Each helper skips the test when its environment variable is
// unset or the server does not answer, so `go test ./...` stays green on
// machines without the databases.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/keyxmakerx/campus/internal/config"
	"github.com/keyxmakerx/campus/internal/database"
)

// Environment variables naming the test servers. They are separate from
// DATABASE_URL and MONGO_URI because the helpers wipe what they touch.
const (
	MariaDBEnv = "DATABASE_TEST_URL"
	MongoEnv   = "MONGO_TEST_URI"
)

// MariaDB opens the test database, applies the migrations and empties the
// given tables. The pool is closed when the test ends.
func MariaDB(t *testing.T, tables ...string) *sql.DB {
	t.Helper()

	dsn := os.Getenv(MariaDBEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping MariaDB test", MariaDBEnv)
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parsing %s: %v", MariaDBEnv, err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		t.Fatalf("opening MariaDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		t.Skipf("MariaDB not available: %v", err)
	}

	if err := database.RunMigrations(db, migrationsDir(t)); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	for _, table := range tables {
		if _, err := db.ExecContext(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("emptying %s: %v", table, err)
		}
	}
	return db
}

// Mongo connects to the test server and returns a freshly dropped database
// named name. The database is dropped again when the test ends.
func Mongo(t *testing.T, name string) *mongo.Database {
	t.Helper()

	uri := os.Getenv(MongoEnv)
	if uri == "" {
		t.Skipf("%s not set, skipping MongoDB test", MongoEnv)
	}

	client, db, err := database.NewMongo(context.Background(), config.DatabaseConfig{
		MongoURI:      uri,
		MongoDatabase: name,
		MaxOpenConns:  5,
	})
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	if err := db.Drop(context.Background()); err != nil {
		_ = client.Disconnect(context.Background())
		t.Fatalf("dropping %s: %v", name, err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

// migrationsDir returns db/migrations from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine dbtest file path")
	}
	// thisFile is internal/database/dbtest/dbtest.go.
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "db", "migrations")
}
