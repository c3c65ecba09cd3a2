package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommandPrintsBuildVersion(t *testing.T) {
	originalVersion := buildVersion
	defer func() { buildVersion = originalVersion }()
	buildVersion = "1.2.3-test"

	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "1.2.3-test") {
		t.Errorf("expected output to contain version, got %q", out.String())
	}
}
