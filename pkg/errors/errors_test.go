package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeBadRecord, "bad magic").WithContext("offset", 512)
	msg := err.Error()
	if !strings.Contains(msg, "E105") || !strings.Contains(msg, "bad magic") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "offset=512") {
		t.Errorf("message missing context: %q", msg)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := Wrap(cause, CodeFileRead, "read record")
	if err.Unwrap() != cause {
		t.Error("unwrap should return the cause")
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("message = %q", err.Error())
	}
	if Wrap(nil, CodeFileRead, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := FullyTrimmed("IU_ANMO_00_BHZ", 1024)
	outer := fmt.Errorf("while streaming: %w", inner)
	if !IsCode(outer, CodeFullyTrimmed) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if IsCode(outer, CodeBadRecord) {
		t.Error("IsCode matched the wrong code")
	}
	if GetCode(fmt.Errorf("plain")) != CodeUnknown {
		t.Error("plain errors should map to unknown")
	}
}

func TestRecordLocalTaxonomy(t *testing.T) {
	local := []*Error{
		BadTrimBoundary("X", 0),
		UnsupportedEncoding(16),
		FullyTrimmed("X", 0),
		New(CodeDecodeFailed, "payload truncated"),
	}
	for _, err := range local {
		if !IsRecordLocal(err) {
			t.Errorf("%s should be record-local", err.Code)
		}
		if IsFatal(err) {
			t.Errorf("%s should not be fatal", err.Code)
		}
	}

	fatal := []*Error{
		FileNotFound("/nope"),
		New(CodeInvariantViolated, "disjoint selection ranges"),
		New(CodeWriteFailed, "short write"),
		ContextCanceled("scan"),
	}
	for _, err := range fatal {
		if IsRecordLocal(err) {
			t.Errorf("%s should not be record-local", err.Code)
		}
		if !IsFatal(err) {
			t.Errorf("%s should be fatal", err.Code)
		}
	}

	if IsFatal(nil) {
		t.Error("nil is not fatal")
	}
}

func TestStackTraceCaptured(t *testing.T) {
	err := New(CodeUnknown, "x")
	if len(err.StackTrace) == 0 {
		t.Fatal("no stack captured")
	}
	if !strings.Contains(err.FormatStack(), "errors_test") {
		t.Errorf("stack missing test frame:\n%s", err.FormatStack())
	}
}
