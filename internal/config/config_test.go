package config

import (
	"strings"
	"testing"
)

func TestLoad_ProductionValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "production refuses default DB password",
			env: map[string]string{
				"ENV":            "production",
				"DB_PASSWORD":    "viewfinder",
				"DATABASE_URL":   "",
				"OPENAI_API_KEY": "sk-test",
			},
			wantErr: "DB_PASSWORD",
		},
		{
			name: "production requires an API key",
			env: map[string]string{
				"ENV":            "production",
				"DB_PASSWORD":    "s3cret",
				"DATABASE_URL":   "",
				"OPENAI_API_KEY": "",
			},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name: "prod alias is checked too",
			env: map[string]string{
				"ENV":            "Prod",
				"DB_PASSWORD":    "viewfinder",
				"DATABASE_URL":   "",
				"OPENAI_API_KEY": "sk-test",
			},
			wantErr: "DB_PASSWORD",
		},
		{
			name: "production with real secrets loads",
			env: map[string]string{
				"ENV":            "production",
				"DB_PASSWORD":    "s3cret",
				"DATABASE_URL":   "",
				"OPENAI_API_KEY": "sk-test",
			},
		},
		{
			name: "DATABASE_URL override skips the password check",
			env: map[string]string{
				"ENV":            "production",
				"DB_PASSWORD":    "viewfinder",
				"DATABASE_URL":   "user:pass@tcp(db:3306)/viewfinder?parseTime=true",
				"OPENAI_API_KEY": "sk-test",
			},
		},
		{
			name: "development runs on defaults",
			env: map[string]string{
				"ENV":            "development",
				"DB_PASSWORD":    "viewfinder",
				"DATABASE_URL":   "",
				"OPENAI_API_KEY": "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load() error = %v, want nil", err)
				}
				if cfg == nil {
					t.Fatal("Load() returned nil config")
				}
				return
			}
			if err == nil {
				t.Fatalf("Load() error = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfigDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		User:     "viewfinder",
		Password: "p@ss/word",
		Name:     "viewfinder",
	}

	dsn := cfg.DSN()
	if !strings.Contains(dsn, "tcp(db.internal:3306)") {
		t.Errorf("DSN %q missing default port on host", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN %q missing parseTime", dsn)
	}
}
