package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendSQLite {
		t.Errorf("expected sqlite default, got %q", cfg.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "sqlite without path",
			cfg:     Config{Backend: BackendSQLite},
			wantErr: "requires a database path",
		},
		{
			name:    "postgres without dsn",
			cfg:     Config{Backend: BackendPostgres},
			wantErr: "requires a DSN",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "etcd"},
			wantErr: "unknown storage backend",
		},
		{
			name: "memory needs nothing",
			cfg:  Config{Backend: BackendMemory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewStorageDispatch(t *testing.T) {
	ctx := context.Background()

	mem, err := NewStorage(ctx, &Config{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("memory backend failed: %v", err)
	}
	defer mem.Close()
	if err := mem.Ping(ctx); err != nil {
		t.Errorf("memory ping failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tally.db")
	sq, err := NewStorage(ctx, &Config{Backend: BackendSQLite, Path: path})
	if err != nil {
		t.Fatalf("sqlite backend failed: %v", err)
	}
	defer sq.Close()
	if err := sq.Ping(ctx); err != nil {
		t.Errorf("sqlite ping failed: %v", err)
	}

	if _, err := NewStorage(ctx, &Config{Backend: "etcd"}); err == nil {
		t.Error("unknown backend should fail")
	}
}
