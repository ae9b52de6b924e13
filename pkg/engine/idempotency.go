package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// idempotencyKeyPrefix marks derived keys so they are distinguishable from caller-supplied ones.
const idempotencyKeyPrefix = "opk_"

// idempotencyMaterial is the canonical input to DeriveIdempotencyKey.
// resourceVersion and href are excluded: a retried request for the same
// change must collide even if the caller refreshed its view of the resource.
type idempotencyMaterial struct {
	Cluster   string       `json:"cluster"`
	Kind      string       `json:"kind"`
	Namespace string       `json:"namespace"`
	Name      string       `json:"name"`
	UID       string       `json:"uid"`
	Action    Action       `json:"action"`
	Diff      DiffSnapshot `json:"diff"`
}

// DeriveIdempotencyKey returns a deterministic key for (resource, action, diff).
// Identical requests yield identical keys.
func DeriveIdempotencyKey(resource ResourceRef, action Action, diff DiffSnapshot) string {
	material := idempotencyMaterial{
		Cluster:   resource.Cluster,
		Kind:      resource.Kind,
		Namespace: resource.Namespace,
		Name:      resource.Name,
		UID:       resource.UID,
		Action:    action,
		Diff:      canonicalDiff(diff),
	}

	// encoding/json sorts map keys, so patch values marshal deterministically.
	data, err := json.Marshal(material)
	if err != nil {
		// Values that cannot be marshaled still produce a stable key from the identity alone.
		material.Diff = DiffSnapshot{PatchFormat: diff.PatchFormat}
		data, _ = json.Marshal(material)
	}

	sum := sha256.Sum256(data)
	return idempotencyKeyPrefix + hex.EncodeToString(sum[:])[:32]
}

// canonicalDiff normalizes the before snapshot so whitespace differences do not change the key.
func canonicalDiff(diff DiffSnapshot) DiffSnapshot {
	c := diff.clone()
	if len(c.Before) == 0 {
		c.Before = nil
		return c
	}
	var v any
	if err := json.Unmarshal(c.Before, &v); err != nil {
		return c
	}
	if normalized, err := json.Marshal(v); err == nil {
		c.Before = normalized
	}
	return c
}
