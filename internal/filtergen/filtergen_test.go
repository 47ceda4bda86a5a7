package filtergen

import (
	"errors"
	"os"
	"testing"
)

func TestValidateReplySuccess(t *testing.T) {
	got, err := ValidateReply(`{"filter": "saturate(1.2) contrast(1.1)"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "saturate(1.2) contrast(1.1)" {
		t.Errorf("unexpected descriptor: %q", got)
	}
}

func TestValidateReplyFencedJSON(t *testing.T) {
	raw := "```json\n{\"filter\": \"sepia(0.3) brightness(0.95)\"}\n```"
	got, err := ValidateReply(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "sepia(0.3) brightness(0.95)" {
		t.Errorf("unexpected descriptor: %q", got)
	}
}

func TestValidateReplyIgnoresExtraFields(t *testing.T) {
	got, err := ValidateReply(`{"filter": "contrast(1.05)", "note": "extra"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "contrast(1.05)" {
		t.Errorf("unexpected descriptor: %q", got)
	}
}

func TestValidateReplyEmpty(t *testing.T) {
	_, err := ValidateReply("   \n\t")
	assertKind(t, err, ErrEmptyResponse)
}

func TestValidateReplyMalformed(t *testing.T) {
	_, err := ValidateReply("I cannot produce a filter right now.")
	assertKind(t, err, ErrMalformedResponse)
}

func TestValidateReplyWrongFieldType(t *testing.T) {
	_, err := ValidateReply(`{"filter": 42}`)
	assertKind(t, err, ErrMalformedResponse)
}

func TestValidateReplyEmptyFilterValue(t *testing.T) {
	_, err := ValidateReply(`{"filter": ""}`)
	assertKind(t, err, ErrInvalidFilterValue)
}

func TestValidateReplyMissingFilterField(t *testing.T) {
	_, err := ValidateReply(`{"other": "value"}`)
	assertKind(t, err, ErrInvalidFilterValue)
}

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T", err)
	}
	if genErr.Kind != kind {
		t.Errorf("expected kind %s, got %s", kind, genErr.Kind)
	}
	if genErr.Message == "" {
		t.Error("error message must be user-presentable, got empty")
	}
}

func TestGenerationErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	genErr := &GenerationError{Kind: ErrServiceUnavailable, Message: "filter service unavailable", Err: inner}

	if !errors.Is(genErr, inner) {
		t.Error("expected errors.Is to find wrapped error")
	}
	if genErr.Error() != "filter service unavailable: connection refused" {
		t.Errorf("unexpected error string: %q", genErr.Error())
	}
}

func TestErrorKindString(t *testing.T) {
	if ErrServiceUnavailable.String() != "service_unavailable" {
		t.Errorf("unexpected name: %s", ErrServiceUnavailable)
	}
	if ErrInvalidFilterValue.String() != "invalid_filter_value" {
		t.Errorf("unexpected name: %s", ErrInvalidFilterValue)
	}
}

func TestGetModelNameDefault(t *testing.T) {
	original := os.Getenv("GEMINI_MODEL")
	defer os.Setenv("GEMINI_MODEL", original)

	os.Unsetenv("GEMINI_MODEL")
	if got := GetModelName(); got != DefaultModelName {
		t.Errorf("expected %s, got %s", DefaultModelName, got)
	}
}

func TestGetModelNameOverride(t *testing.T) {
	original := os.Getenv("GEMINI_MODEL")
	defer os.Setenv("GEMINI_MODEL", original)

	os.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	if got := GetModelName(); got != "gemini-2.5-pro" {
		t.Errorf("expected override, got %s", got)
	}
}
