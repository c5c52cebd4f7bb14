package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/humpyard/internal/config"
	"github.com/zulandar/humpyard/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		user     string
		database string
		want     string
	}{
		{
			name:     "default local",
			host:     "127.0.0.1",
			port:     3306,
			user:     "root",
			database: "humpyard",
			want:     "root@tcp(127.0.0.1:3306)/humpyard?parseTime=true",
		},
		{
			name:     "custom host and port",
			host:     "10.0.0.5",
			port:     3307,
			user:     "hy",
			database: "hy_bob",
			want:     "hy@tcp(10.0.0.5:3307)/hy_bob?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.host, tt.port, tt.user, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAllModels(t *testing.T) {
	if got := len(AllModels()); got != 2 {
		t.Errorf("len(AllModels()) = %d, want 2", got)
	}
}

func TestConnect_SqliteCreatesDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".humpyard", "history.db")
	gormDB, err := Connect(config.DatabaseConfig{Driver: "sqlite"}, path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if !gormDB.Migrator().HasTable(&models.MigrationRun{}) {
		t.Error("migration_runs table missing")
	}
	if !gormDB.Migrator().HasTable(&models.FileResult{}) {
		t.Error("file_results table missing")
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"}, "")
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %v, want unsupported driver", err)
	}
}
