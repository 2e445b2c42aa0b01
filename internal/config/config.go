// Package config reads the process configuration from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultStoreBaseURL = "https://api.airtable.com"
	defaultMaxSelectAll = 5000
)

type Config struct {
	// Feature gate for the whole API surface. /status and /metrics stay up
	// regardless.
	Enabled bool

	AdminSecret  string
	MaxSelectAll int

	StoreAPIKey  string
	StoreBaseURL string

	// TenantBases maps tenant identifier to row-store base id.
	TenantBases        map[string]string
	DefaultTenant      string
	AllowDefaultTenant bool

	AppEnv    string
	GitCommit string
	GitBranch string
}

// FromEnv builds a Config from process environment variables. It fails when
// the row-store key or the tenant base map is missing or malformed.
func FromEnv() (Config, error) {
	cfg := Config{
		Enabled:            Bool(os.Getenv("ENABLE_TOP_SCORING_LEADS")),
		AdminSecret:        os.Getenv("ADMIN_BEARER_SECRET"),
		MaxSelectAll:       defaultMaxSelectAll,
		StoreAPIKey:        os.Getenv("ROW_STORE_API_KEY"),
		StoreBaseURL:       defaultStoreBaseURL,
		DefaultTenant:      os.Getenv("DEFAULT_TENANT"),
		AllowDefaultTenant: Bool(os.Getenv("ALLOW_DEFAULT_TENANT")),
		AppEnv:             os.Getenv("APP_ENV"),
		GitCommit:          os.Getenv("GIT_COMMIT"),
		GitBranch:          os.Getenv("GIT_BRANCH"),
	}

	if raw := os.Getenv("MAX_SELECT_ALL"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return Config{}, fmt.Errorf("MAX_SELECT_ALL: invalid value %q", raw)
		}
		cfg.MaxSelectAll = v
	}
	if raw := os.Getenv("ROW_STORE_BASE_URL"); raw != "" {
		cfg.StoreBaseURL = strings.TrimRight(raw, "/")
	}
	if cfg.StoreAPIKey == "" {
		return Config{}, fmt.Errorf("ROW_STORE_API_KEY is required")
	}

	raw := os.Getenv("TENANT_BASES")
	if raw == "" {
		return Config{}, fmt.Errorf("TENANT_BASES is required (JSON map of tenant id to base id)")
	}
	if err := json.Unmarshal([]byte(raw), &cfg.TenantBases); err != nil {
		return Config{}, fmt.Errorf("TENANT_BASES: %w", err)
	}
	if len(cfg.TenantBases) == 0 {
		return Config{}, fmt.Errorf("TENANT_BASES is empty")
	}
	if cfg.AllowDefaultTenant {
		if cfg.DefaultTenant == "" {
			return Config{}, fmt.Errorf("ALLOW_DEFAULT_TENANT is set but DEFAULT_TENANT is empty")
		}
		if _, ok := cfg.TenantBases[cfg.DefaultTenant]; !ok {
			return Config{}, fmt.Errorf("DEFAULT_TENANT %q not present in TENANT_BASES", cfg.DefaultTenant)
		}
	}
	return cfg, nil
}

// Bool parses the relaxed boolean used across the API: 1, true, yes, on
// (case-insensitive) are true, everything else is false.
func Bool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
