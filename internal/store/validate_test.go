package store

import (
	"strings"
	"testing"
)

func TestValidateOwnerID(t *testing.T) {
	if err := ValidateOwnerID("owner-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateOwnerID(""); err == nil {
		t.Error("empty owner must fail")
	}
	if err := ValidateOwnerID(strings.Repeat("a", MaxOwnerIDLength)); err != nil {
		t.Errorf("max length must pass: %v", err)
	}
	if err := ValidateOwnerID(strings.Repeat("a", MaxOwnerIDLength+1)); err == nil {
		t.Error("over-length owner must fail")
	}
}

func TestValidateInstanceName(t *testing.T) {
	if err := ValidateInstanceName("owner-1-1699999999999-abc123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateInstanceName(""); err == nil {
		t.Error("empty name must fail")
	}
	if err := ValidateInstanceName(strings.Repeat("a", MaxInstanceNameLength+1)); err == nil {
		t.Error("over-length name must fail")
	}
}
