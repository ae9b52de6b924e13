package policy

import (
	"time"
)

// Names of the built-in guardrail policies.
const (
	PolicyDeleteWithoutRollback = "delete-without-rollback"
	PolicyProductionMultiStep   = "production-multi-step"
	PolicyReplicaCeiling        = "replica-ceiling"
	PolicyImageTag              = "image-tag"
	PolicyResourceNaming        = "resource-naming"
)

// GetBuiltinPolicies returns all built-in guardrail policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		deleteWithoutRollbackPolicy(),
		productionMultiStepPolicy(),
		replicaCeilingPolicy(),
		imageTagPolicy(),
		resourceNamingPolicy(),
	}
}

func builtin(name, description string, severity Severity, tags []string, rego string) Policy {
	now := time.Now()
	return Policy{
		Name:        name,
		Description: description,
		Severity:    severity,
		Enabled:     true,
		Tags:        tags,
		Metadata:    map[string]any{"source": "builtin"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego:        rego,
	}
}

// deleteWithoutRollbackPolicy flags deletes that cannot be undone from the plan alone.
func deleteWithoutRollbackPolicy() Policy {
	return builtin(
		PolicyDeleteWithoutRollback,
		"Flags delete plans that carry no rollback patch",
		SeverityWarning,
		[]string{"rollback", "delete"},
		`package opsplan.guardrails.delete_rollback

import rego.v1

deny contains finding if {
	input.context.destructive
	rollback := object.get(input.plan.diff, "rollbackPatch", [])
	count(rollback) == 0
	finding := {
		"message": sprintf("Delete of %s/%s has no rollback patch", [input.plan.resource.kind, input.plan.resource.name]),
		"severity": "warning",
	}
}`)
}

// productionMultiStepPolicy flags long plans aimed at production namespaces.
func productionMultiStepPolicy() Policy {
	return builtin(
		PolicyProductionMultiStep,
		"Flags production plans with more steps than the configured limit",
		SeverityWarning,
		[]string{"production", "steps"},
		`package opsplan.guardrails.production_steps

import rego.v1

deny contains finding if {
	input.context.production
	n := count(input.plan.steps)
	n > input.limits.maxProductionSteps
	finding := {
		"message": sprintf("Production plan in namespace %q has %d steps (limit %d)", [input.plan.resource.namespace, n, input.limits.maxProductionSteps]),
		"severity": "warning",
	}
}`)
}

// replicaCeilingPolicy flags replica targets above the configured ceiling.
func replicaCeilingPolicy() Policy {
	return builtin(
		PolicyReplicaCeiling,
		"Flags replica targets above the configured ceiling",
		SeverityWarning,
		[]string{"capacity", "scale"},
		`package opsplan.guardrails.replica_ceiling

import rego.v1

deny contains finding if {
	some op in input.plan.diff.patch
	op.op != "remove"
	contains(op.path, "/spec/replicas")
	is_number(op.value)
	op.value > input.limits.maxReplicas
	finding := {
		"message": sprintf("Replica target %v at %s exceeds ceiling %d", [op.value, op.path, input.limits.maxReplicas]),
		"severity": "warning",
	}
}`)
}

// imageTagPolicy flags container images without a pinned tag.
func imageTagPolicy() Policy {
	return builtin(
		PolicyImageTag,
		"Flags container images without an explicit tag or pinned to latest",
		SeverityWarning,
		[]string{"images", "supply-chain"},
		`package opsplan.guardrails.image_tag

import rego.v1

image_ops contains op if {
	some op in input.plan.diff.patch
	op.op != "remove"
	contains(op.path, "/containers")
	endswith(op.path, "/image")
	is_string(op.value)
}

last_segment(image) := seg if {
	parts := split(image, "/")
	seg := parts[count(parts) - 1]
}

deny contains finding if {
	some op in image_ops
	seg := last_segment(op.value)
	not contains(seg, ":")
	not contains(seg, "@")
	finding := {
		"message": sprintf("Image %q at %s has no explicit tag", [op.value, op.path]),
		"severity": "warning",
	}
}

deny contains finding if {
	some op in image_ops
	endswith(last_segment(op.value), ":latest")
	finding := {
		"message": sprintf("Image %q at %s uses the floating latest tag", [op.value, op.path]),
		"severity": "warning",
	}
}`)
}

// resourceNamingPolicy checks the target name against DNS subdomain rules.
func resourceNamingPolicy() Policy {
	return builtin(
		PolicyResourceNaming,
		"Flags target names that are not valid DNS subdomain names",
		SeverityInfo,
		[]string{"naming", "conventions"},
		`package opsplan.guardrails.naming

import rego.v1

deny contains finding if {
	name := input.plan.resource.name
	name != ""
	not regex.match("^[a-z0-9]([-a-z0-9.]*[a-z0-9])?$", name)
	finding := {
		"message": sprintf("Resource name %q must contain only lowercase letters, numbers, '-' and '.'", [name]),
		"severity": "info",
	}
}

deny contains finding if {
	name := input.plan.resource.name
	count(name) > 253
	finding := {
		"message": sprintf("Resource name %q exceeds 253 characters", [name]),
		"severity": "info",
	}
}

deny contains finding if {
	object.get(input.plan.resource, "name", "") == ""
	finding := {
		"message": "Plan target has no resource name",
		"severity": "warning",
	}
}`)
}
