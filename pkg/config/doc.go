// Package config loads the opsplan application configuration and decodes
// draft input documents.
//
// The application configuration is a YAML file decoded over Default and
// checked with validator struct tags:
//
//	store:
//	  backend: sqlite
//	  sqlite:
//	    path: /var/lib/opsplan/plans.db
//	prompts:
//	  path: /etc/opsplan/prompts.yaml
//	  watch: true
//	policy:
//	  enabled: true
//	  paths: [/etc/opsplan/policies]
//	audit:
//	  log: true
//	  store: true
//	  file: /var/log/opsplan/audit.jsonl
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//
// Draft inputs may be written in CUE, YAML or JSON. Every format is unified
// with the #Draft CUE definition before it is decoded, so unknown fields,
// unknown actions and malformed patch operations are reported with their
// source positions:
//
//	action: "scale"
//	resource: {
//		kind:            "Deployment"
//		namespace:       "production"
//		name:            "checkout"
//		resourceVersion: "41"
//	}
//	diff: patch: [{op: "replace", path: "/spec/replicas", value: 6}]
package config
