package swarm

import (
	"bytes"
	"html"
	"text/template"
)

// Prompt rendering follows the teacher's text/template usage in
// internal/compact/haiku.go (renderTier1Prompt): one parsed template per
// phase, executed against a small data struct. This is deliberately thin —
// a full prompt-templating system is out of scope (spec.md §1's "template
// rendering for specialist prompts" non-goal) — these are fixed, literal
// templates for the coordinator's own four calls, not a general facility.
//
// funcMap's "escape" is applied explicitly to every field that echoes
// client-submitted free text (task/subtask descriptions), per spec.md §8's
// templating property: task text must render HTML-escaped even though
// these are plain text/template instances, not html/template.
var funcMap = template.FuncMap{"escape": html.EscapeString}

var (
	decomposeTmpl  = template.Must(template.New("decompose").Funcs(funcMap).Parse(decomposePromptText))
	contextTmpl    = template.Must(template.New("context").Funcs(funcMap).Parse(contextPromptText))
	resolveTmpl    = template.Must(template.New("resolve").Funcs(funcMap).Parse(resolvePromptText))
	synthesizeTmpl = template.Must(template.New("synthesize").Funcs(funcMap).Parse(synthesizePromptText))
)

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const decomposePromptText = `You are decomposing a software project into independent subtasks for a swarm of specialist workers.

**Project:** {{escape .Text}}
**Priority:** {{.Priority}}
{{- if .Constraints}}
**Constraints:**
{{- range .Constraints}}
- {{escape .}}
{{- end}}
{{- end}}

**Available specialist pool:**
{{- range .SpecialistPool}}
- {{.Kind}} (capabilities: {{.Capabilities}}, available: {{.Available}})
{{- end}}

Respond with strict JSON matching: {"subtasks": [{"id", "description", "kind", "complexity", "estimated_minutes", "priority", "dependencies": [sibling ids]}]}. Dependencies must reference only sibling subtask ids declared in this same response.`

const contextPromptText = `You are producing an execution brief for a specialist about to start a subtask.

**Subtask:** {{escape .Description}}
**Specialist role:** {{.Specialist}}
**Parent project id:** {{.ParentTaskID}}

Respond with strict JSON matching: {"scope", "mandatory_readings": [], "architecture_constraints": [], "success_criteria": [], "related_completed_work": []}.`

const resolvePromptText = `Two or more specialists proposed diverging solutions to the same subtask. Choose the best one.

**Context:** {{escape .Context}}

**Proposals:**
{{- range $i, $p := .Solutions}}
{{$i}}. instance={{$p.InstanceID}} approach={{escape $p.Approach}}
   reasoning: {{escape $p.Reasoning}}
{{- end}}

Respond with strict JSON matching: {"chosen_index", "rationale", "recommendations": []}. chosen_index must be the zero-based index of one of the listed proposals.`

const synthesizePromptText = `You are producing a final integration report for a project whose subtasks have all completed.

**Project:** {{escape .ParentText}}

**Completed subtasks:**
{{- range .CompletedSubtasks}}
- {{.ID}}: {{escape .Description}}
  output: {{escape .Output}}
{{- end}}

Respond with strict JSON matching: {"status": "ready_for_integration"|"requires_fixes"|"integrated", "integration_steps": [], "next_actions": []}.`
