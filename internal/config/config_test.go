package config

import "testing"

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "TRUE": true, "Yes": true, "on": true,
		"0": false, "false": false, "": false, "enabled": false, " 1 ": true,
	}
	for raw, want := range cases {
		if got := Bool(raw); got != want {
			t.Errorf("Bool(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("ROW_STORE_API_KEY", "key")
	t.Setenv("TENANT_BASES", `{"acme":"appAcme"}`)
	t.Setenv("ENABLE_TOP_SCORING_LEADS", "yes")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !cfg.Enabled {
		t.Error("Enabled = false, want true")
	}
	if cfg.MaxSelectAll != 5000 {
		t.Errorf("MaxSelectAll = %d, want 5000", cfg.MaxSelectAll)
	}
	if cfg.TenantBases["acme"] != "appAcme" {
		t.Errorf("TenantBases[acme] = %q", cfg.TenantBases["acme"])
	}
}

func TestFromEnvMissingBases(t *testing.T) {
	t.Setenv("ROW_STORE_API_KEY", "key")
	t.Setenv("TENANT_BASES", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for missing TENANT_BASES")
	}
}

func TestFromEnvDefaultTenantGate(t *testing.T) {
	t.Setenv("ROW_STORE_API_KEY", "key")
	t.Setenv("TENANT_BASES", `{"acme":"appAcme"}`)
	t.Setenv("ALLOW_DEFAULT_TENANT", "1")
	t.Setenv("DEFAULT_TENANT", "ghost")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for default tenant outside TENANT_BASES")
	}
}
