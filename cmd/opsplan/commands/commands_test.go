package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/lifecycle"
	"github.com/openfroyo/opsplan/pkg/policy"
	"github.com/openfroyo/opsplan/pkg/prompts"
)

const draftYAML = `
action: scale
intent: Scale checkout to 6 replicas
requestedBy: alice
resource:
  kind: Deployment
  namespace: production
  name: checkout
  resourceVersion: "41"
diff:
  before:
    spec:
      replicas: 3
  patch:
    - op: replace
      path: /spec/replicas
      value: 6
  rollbackPatch:
    - op: replace
      path: /spec/replicas
      value: 3
steps:
  - id: s1
    action: patch
    description: Raise replica count
`

const promptsYAML = `
prompts:
  - id: scale-deployment
    name: Scale a deployment
    riskTier: high
`

type cli struct {
	t      *testing.T
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("LOG_LEVEL", "")
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	write("draft.yaml", draftYAML)
	promptsPath := write("prompts.yaml", promptsYAML)
	configPath := write("opsplan.yaml", fmt.Sprintf(`
store:
  backend: sqlite
  sqlite:
    path: %s
prompts:
  path: %s
audit:
  log: false
  store: true
  file: %s
telemetry:
  logging:
    level: error
  metrics:
    enabled: false
`, filepath.Join(dir, "plans.db"), promptsPath, filepath.Join(dir, "audit.jsonl")))

	return &cli{t: t, dir: dir, config: configPath}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", c.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) runJSON(v any, args ...string) {
	c.t.Helper()
	out, err := c.run(append(args, "--json")...)
	require.NoError(c.t, err, out)
	require.NoError(c.t, json.Unmarshal([]byte(out), v), out)
}

func (c *cli) path(name string) string {
	return filepath.Join(c.dir, name)
}

func TestDraftExecuteAudit(t *testing.T) {
	c := newCLI(t)

	var plan engine.OperationPlan
	c.runJSON(&plan, "draft", "-f", c.path("draft.yaml"))
	assert.Equal(t, engine.StatusPending, plan.Status)
	assert.Equal(t, engine.RiskHigh, plan.Risk.Level)
	assert.Equal(t, "alice", plan.Audit.RequestedBy)
	require.NotEmpty(t, plan.Audit.IdempotencyKey)

	var executed engine.OperationPlan
	execArgs := []string{"execute", plan.ID,
		"--resource-version", "41",
		"--idempotency-key", plan.Audit.IdempotencyKey,
		"--actor", "bob"}
	c.runJSON(&executed, execArgs...)
	assert.Equal(t, engine.StatusExecuted, executed.Status)
	assert.Equal(t, "bob", executed.Audit.ExecutedBy)

	// Replaying is a no-op.
	_, err := c.run(execArgs...)
	require.NoError(t, err)

	var events []engine.AuditEvent
	c.runJSON(&events, "audit", "--plan", plan.ID)
	types := make([]engine.AuditEventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, []engine.AuditEventType{
		engine.EventPlanGenerated,
		engine.EventPlanExecutionAttempt,
		engine.EventPlanExecutionSuccess,
	}, types)

	data, err := os.ReadFile(c.path("audit.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count(data, []byte("\n")))
}

func TestExecuteRejectsStaleResourceVersion(t *testing.T) {
	c := newCLI(t)

	var plan engine.OperationPlan
	c.runJSON(&plan, "draft", "-f", c.path("draft.yaml"))

	_, err := c.run("execute", plan.ID,
		"--resource-version", "42",
		"--idempotency-key", plan.Audit.IdempotencyKey)
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))

	var stored engine.OperationPlan
	c.runJSON(&stored, "show", plan.ID)
	assert.Equal(t, engine.StatusPending, stored.Status)
}

func TestShowPreviewAndList(t *testing.T) {
	c := newCLI(t)

	var plan engine.OperationPlan
	c.runJSON(&plan, "draft", "-f", c.path("draft.yaml"))

	var preview lifecycle.Preview
	c.runJSON(&preview, "show", plan.ID, "--preview")
	assert.JSONEq(t, `{"spec":{"replicas":6}}`, string(preview.After))
	assert.JSONEq(t, `{"spec":{"replicas":3}}`, string(preview.Rollback))

	var plans []engine.OperationPlan
	c.runJSON(&plans, "list", "--namespace", "production")
	require.Len(t, plans, 1)
	assert.Equal(t, plan.ID, plans[0].ID)

	out, err := c.run("list", "--status", "executed")
	require.NoError(t, err)
	assert.Contains(t, out, "No plans found")

	_, err = c.run("list", "--status", "bogus")
	assert.Error(t, err)
}

func TestDismiss(t *testing.T) {
	c := newCLI(t)

	var plan engine.OperationPlan
	c.runJSON(&plan, "draft", "-f", c.path("draft.yaml"))

	out, err := c.run("dismiss", plan.ID, "--actor", "carol")
	require.NoError(t, err)
	assert.Contains(t, out, "dismissed")

	var events []engine.AuditEvent
	c.runJSON(&events, "audit", "--type", string(engine.EventPlanDismissed))
	require.Len(t, events, 1)
	assert.Equal(t, "carol", events[0].Actor)
}

func TestEvaluateAppliesPromptTier(t *testing.T) {
	c := newCLI(t)

	var result evaluation
	c.runJSON(&result, "evaluate", "-f", c.path("draft.yaml"), "--prompt", "scale-deployment")
	assert.Equal(t, engine.RiskHigh, result.Risk.Level)
	assert.Contains(t, result.Risk.Factors, "prompt_high_risk")

	_, err := os.Stat(c.path("plans.db"))
	assert.True(t, os.IsNotExist(err), "evaluate must not open the store")
}

func TestPromptsAndPoliciesList(t *testing.T) {
	c := newCLI(t)

	var entries []prompts.Metadata
	c.runJSON(&entries, "prompts", "list")
	require.Len(t, entries, 1)
	assert.Equal(t, "scale-deployment", entries[0].ID)

	var policies []policy.Policy
	c.runJSON(&policies, "policies", "list")
	names := make([]string, len(policies))
	for i, p := range policies {
		names[i] = p.Name
	}
	assert.Contains(t, names, policy.PolicyDeleteWithoutRollback)
	assert.Contains(t, names, policy.PolicyImageTag)
}

func TestDraftRequiresFile(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("draft")
	assert.Error(t, err)

	bad := c.path("bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("action: explode\n"), 0o600))
	_, err = c.run("draft", "-f", bad)
	assert.Error(t, err)
}
