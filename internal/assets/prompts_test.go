package assets

import (
	"strings"
	"testing"
)

func TestFilterSystemPromptEmbedded(t *testing.T) {
	if strings.TrimSpace(FilterSystemPrompt) == "" {
		t.Fatal("embedded system prompt is empty")
	}
	if !strings.Contains(FilterSystemPrompt, `{"filter"`) {
		t.Error("system prompt should pin the JSON reply shape")
	}
}

func TestRenderFilterRequestPromptWithoutPhoto(t *testing.T) {
	got := RenderFilterRequestPrompt(false)
	if got == "" {
		t.Fatal("rendered prompt is empty")
	}
	if strings.Contains(got, "attached") {
		t.Error("prompt without photo should not mention an attachment")
	}
	if !strings.Contains(got, "Example of a valid reply") {
		t.Error("prompt should include the anchoring example")
	}
}

func TestRenderFilterRequestPromptWithPhoto(t *testing.T) {
	got := RenderFilterRequestPrompt(true)
	if !strings.Contains(got, "attached") {
		t.Error("prompt with photo should mention the attachment")
	}
}
