// Package normalize applies the fixed-model request-shape transforms for the
// codex-5.3 routes. Transforms are pure: inputs are never mutated, outputs
// are stable under re-application, and caller-supplied fields pass through
// except where overridden.
package normalize

import "maps"

// ChatCompletions overlays the forced model on a chat-completion-shaped body
// and fills in reasoning_effort only when the caller did not supply one.
func ChatCompletions(body map[string]any, model, defaultEffort string) map[string]any {
	out := cloneBody(body)
	out["model"] = model
	if _, ok := out["reasoning_effort"]; !ok && defaultEffort != "" {
		out["reasoning_effort"] = defaultEffort
	}
	return out
}

// Responses overlays the forced model on a responses-shaped body. A
// non-empty caller-supplied reasoning object passes through unchanged;
// otherwise one is synthesized with the default effort.
func Responses(body map[string]any, model, defaultEffort string) map[string]any {
	out := cloneBody(body)
	out["model"] = model
	if reasoning, ok := out["reasoning"].(map[string]any); ok && len(reasoning) > 0 {
		return out
	}
	if defaultEffort != "" {
		out["reasoning"] = map[string]any{"effort": defaultEffort}
	}
	return out
}

func cloneBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body)+2)
	maps.Copy(out, body)
	return out
}
