package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestClassifyCmd_PrintsCategoryAndTransience(t *testing.T) {
	cmd := newClassifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"upstream unavailable, deadline exceeded"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "transient=transient") {
		t.Errorf("output = %q, want it to classify as transient", out.String())
	}
}

func TestClassifyCmd_PermanentMessage(t *testing.T) {
	cmd := newClassifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"permission denied calling upstream"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "transient=permanent") {
		t.Errorf("output = %q, want it to classify as permanent", out.String())
	}
}
