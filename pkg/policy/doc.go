// Package policy evaluates advisory guardrail policies against drafted
// operation plans using Open Policy Agent.
//
// Each policy is a Rego module that defines a deny set. Members are either
// plain strings or objects:
//
//	package opsplan.guardrails.example
//
//	import rego.v1
//
//	deny contains finding if {
//		input.plan.action == "delete"
//		finding := {"message": "deletes need a ticket", "severity": "warning"}
//	}
//
// The input document has three parts:
//
//   - plan: the OperationPlan in its camelCase JSON shape
//   - context: {production, operation, timestamp}
//   - limits: {maxReplicas, maxProductionSteps}
//
// Built-in policies:
//
//   - delete-without-rollback: delete plans with no rollback patch
//   - production-multi-step: production plans longer than maxProductionSteps
//   - replica-ceiling: replica targets above maxReplicas
//   - image-tag: images with no tag or the latest tag
//   - resource-naming: target names that are not DNS subdomain names
//
// Findings never block a transition and never change the computed risk;
// they are stored on the plan for reviewers. Additional policies can be
// loaded from .rego files or JSON/YAML bundles and hot reloaded with Watch.
package policy
