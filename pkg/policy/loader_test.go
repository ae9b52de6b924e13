package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/opsplan/pkg/engine"
)

const customRego = `# Flags every restart.
# Restarts are reviewed by the on-call.
package custom.restarts

import rego.v1

deny contains finding if {
	input.plan.action == "restart"
	finding := {"message": "restart needs on-call review", "severity": "error"}
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "restarts.rego")
	writeFile(t, policyFile, customRego)

	policies, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "restarts" {
		t.Errorf("Expected name 'restarts', got '%s'", p.Name)
	}
	if p.Rego != customRego {
		t.Error("Rego content doesn't match")
	}
	if !p.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if p.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", p.Severity)
	}
	if p.Description != "Flags every restart. Restarts are reviewed by the on-call." {
		t.Errorf("Unexpected description: %q", p.Description)
	}
}

func TestLoadFromFile_YAMLBundle(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "bundle.yaml")
	writeFile(t, path, `name: team
version: "1"
policies:
  - name: first
    enabled: true
    rego: |
      package team.first
      import rego.v1
      deny contains "first" if { true }
  - name: second
    severity: critical
    enabled: true
    rego: |
      package team.second
      import rego.v1
      deny contains "second" if { true }
`)

	policies, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Severity != SeverityWarning {
		t.Errorf("Expected defaulted severity, got %s", policies[0].Severity)
	}
	if policies[1].Severity != SeverityCritical {
		t.Errorf("Expected critical severity, got %s", policies[1].Severity)
	}
}

func TestLoadFromFile_JSONPolicy(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "single.json")
	writeFile(t, path, `{"name":"single","enabled":true,"rego":"package single\nimport rego.v1\ndeny contains \"x\" if { true }"}`)

	policies, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "single" {
		t.Fatalf("Unexpected policies: %+v", policies)
	}

	invalid := filepath.Join(t.TempDir(), "invalid.json")
	writeFile(t, invalid, `{"description":"no rego"}`)
	if _, err := loader.loadFromFile(context.Background(), invalid); err == nil {
		t.Error("Expected error for definition without name and rego")
	}
}

func TestLoadFromDirectory_SkipsBadFiles(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "restarts.rego"), customRego)
	writeFile(t, filepath.Join(dir, "broken.json"), "{not json")
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "restarts" {
		t.Errorf("Unexpected policies: %+v", policies)
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestEngineLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "restarts.rego"), customRego)

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	plan := basePlan()
	plan.Action = engine.ActionRestart
	findings, err := eng.Check(context.Background(), plan)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	var found bool
	for _, f := range findings {
		if f.Policy == "restarts" {
			found = true
			if f.Severity != string(SeverityError) {
				t.Errorf("Expected severity from rule, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Errorf("Expected finding from loaded policy, got %v", policiesOf(findings))
	}

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("ReloadPolicies() error = %v", err)
	}
	if _, err := eng.GetPolicy("restarts"); err != nil {
		t.Errorf("loaded policy lost on reload: %v", err)
	}
}

func TestEngineWatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "restarts.rego"), customRego)

	eng := newTestEngine(t, WithoutBuiltins())
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeFile(t, filepath.Join(dir, "deletes.rego"), `package custom.deletes

import rego.v1

deny contains "delete flagged" if { input.plan.action == "delete" }`)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := eng.GetPolicy("deletes"); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("new policy file was not picked up")
}
