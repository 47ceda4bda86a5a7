// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time, keeping prompt wording reviewable outside Go source.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// --- Static prompts (no dynamic data) ---

// FilterSystemPrompt is the system instruction for cinematic filter generation.
// It pins the model to the colorist role and the exact JSON reply shape.
//
//go:embed prompts/filter-system.txt
var FilterSystemPrompt string

// --- Dynamic prompt templates ---

//go:embed prompts/filter-request.txt
var filterRequestTemplate string

// Pre-parsed template. template.Must panics on a malformed template, catching
// errors at program startup rather than at call time.
var filterRequestTmpl = template.Must(template.New("filter-request").Parse(filterRequestTemplate))

// PromptData holds the dynamic data injected into prompt templates.
type PromptData struct {
	// HasPhoto indicates whether the request carries the photograph inline,
	// in which case the instruction tells the model to tailor the grade to it.
	HasPhoto bool
}

// RenderFilterRequestPrompt renders the filter generation instruction.
// The instruction is otherwise fixed: one example reply anchors the output
// format, and a closing directive forbids accompanying text.
func RenderFilterRequestPrompt(hasPhoto bool) string {
	var buf bytes.Buffer
	// Template execution errors are not expected with this simple template,
	// but we handle them gracefully by returning whatever was rendered.
	_ = filterRequestTmpl.Execute(&buf, PromptData{HasPhoto: hasPhoto})
	return buf.String()
}
