package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingReferenceError(t *testing.T) {
	err := NewMissingReferenceError("predictions", 40, 9).WithImage("img-7")

	want := "missing reference [image=img-7, source=predictions, index=40]: value 9 has no category"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrMissingReference) {
		t.Error("errors.Is(err, ErrMissingReference) = false, want true")
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}

	var target *MissingReferenceError
	wrapped := fmt.Errorf("remap: %w", err)
	if !As(wrapped, &target) {
		t.Fatal("As() failed to find MissingReferenceError")
	}
	if target.Value != 9 {
		t.Errorf("Value = %d, want 9", target.Value)
	}
}

func TestUnregisteredLabelError(t *testing.T) {
	err := NewUnregisteredLabelError("labels", "tumor")

	want := `missing reference [source=labels]: label "tumor" is not registered`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Label != "tumor" {
		t.Errorf("Label = %q, want %q", err.Label, "tumor")
	}
}

func TestIncompleteConfigurationError(t *testing.T) {
	err := NewIncompleteConfigurationError("parameters.certainty.values")

	if !Is(err, ErrIncompleteConfiguration) {
		t.Error("Is(err, ErrIncompleteConfiguration) = false, want true")
	}
	if GetSeverity(err) != SeverityInfo {
		t.Errorf("GetSeverity() = %v, want %v", GetSeverity(err), SeverityInfo)
	}
	want := "incomplete configuration [field=parameters.certainty.values]: no value available"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTransientError(t *testing.T) {
	cause := New("connection reset")
	err := NewTransientError("fetch annotation", cause).WithResource("annotation/abc")

	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
	if !Is(err, cause) {
		t.Error("Is(err, cause) = false, want true")
	}
	if !Is(err, ErrTransient) {
		t.Error("Is(err, ErrTransient) = false, want true")
	}
	want := "transient failure [resource=annotation/abc]: fetch annotation: connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestJobNotFoundError(t *testing.T) {
	err := NewJobNotFoundError("dsarchive/superpixel:latest#SuperpixelClassification")

	if !Is(err, ErrJobNotFound) {
		t.Error("Is(err, ErrJobNotFound) = false, want true")
	}
	if !Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = false, want true")
	}
	var nf *NotFoundError
	if !As(err, &nf) {
		t.Fatal("As() failed to find NotFoundError")
	}
	if nf.ResourceType != "job image" {
		t.Errorf("ResourceType = %q, want %q", nf.ResourceType, "job image")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("must be positive").WithField("job.poll_interval_ms").WithValue(0)

	want := "validation error [field=job.poll_interval_ms, value=0]: must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("Is(err, ErrInvalidInput) = false, want true")
	}
}

func TestClassificationHelpers_NilAndPlain(t *testing.T) {
	plain := New("plain")

	tests := []struct {
		name      string
		err       error
		retryable bool
		facing    bool
		severity  Severity
	}{
		{"nil", nil, false, false, SeverityDebug},
		{"plain", plain, false, false, SeverityError},
		{"transient", NewTransientError("op", plain), true, true, SeverityWarning},
		{"not found", NewNotFoundError("folder", "Models"), false, true, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsUserFacing(tt.err); got != tt.facing {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.facing)
			}
			if got := GetSeverity(tt.err); got != tt.severity {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.severity)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	base := New("boom")
	err := Wrapf(base, "load %s", "folder-1")
	if err.Error() != "load folder-1: boom" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, base) {
		t.Error("wrapped error should match base")
	}
}
