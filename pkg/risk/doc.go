// Package risk scores operation plans.
//
// Evaluate is a pure heuristic scorer: an action baseline adjusted by
// namespace tier, resource kind, replica and image changes, plan size, and
// rollback availability. It is blind to who or what authored the change.
//
// Annotator layers provenance on top: when a plan was produced from an
// instruction template, the template's declared tier can raise the level,
// score, and SLO budget impact, but never lower them.
//
//	r := risk.Evaluate(engine.ActionScale, "production", "Deployment", diff, steps)
//	r = annotator.Annotate(ctx, r, "scale-deployment")
package risk
