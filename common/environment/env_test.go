package environment_test

import (
	"testing"
	"time"

	"github.com/felichat/felichat/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("FELICHAT_TEST_STR", "value")
	if got := environment.StringOr("FELICHAT_TEST_STR", "fallback"); got != "value" {
		t.Errorf("StringOr set = %q, want %q", got, "value")
	}
	if got := environment.StringOr("FELICHAT_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("StringOr unset = %q, want fallback", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("FELICHAT_TEST_REQ", "present")
	v, err := environment.RequiredString("FELICHAT_TEST_REQ")
	if err != nil || v != "present" {
		t.Errorf("RequiredString set = (%q, %v), want (present, nil)", v, err)
	}
	if _, err := environment.RequiredString("FELICHAT_TEST_REQ_UNSET"); err == nil {
		t.Error("RequiredString unset: expected error")
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("FELICHAT_TEST_BOOL", "true")
	if !environment.BoolOr("FELICHAT_TEST_BOOL", false) {
		t.Error("BoolOr(true) = false")
	}
	t.Setenv("FELICHAT_TEST_BOOL", "not-a-bool")
	if environment.BoolOr("FELICHAT_TEST_BOOL", false) {
		t.Error("BoolOr(garbage) should return the default")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("FELICHAT_TEST_INT", "42")
	if got := environment.IntOr("FELICHAT_TEST_INT", 7); got != 42 {
		t.Errorf("IntOr = %d, want 42", got)
	}
	if got := environment.IntOr("FELICHAT_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("IntOr unset = %d, want 7", got)
	}
}

func TestFloatOr(t *testing.T) {
	t.Setenv("FELICHAT_TEST_FLOAT", "1.5")
	if got := environment.FloatOr("FELICHAT_TEST_FLOAT", 2.0); got != 1.5 {
		t.Errorf("FloatOr = %v, want 1.5", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("FELICHAT_TEST_DUR", "90s")
	if got := environment.DurationOr("FELICHAT_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("DurationOr = %v, want 90s", got)
	}
	t.Setenv("FELICHAT_TEST_DUR", "ninety seconds")
	if got := environment.DurationOr("FELICHAT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("DurationOr garbage = %v, want default", got)
	}
}
