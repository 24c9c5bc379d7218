package main

import (
	"bytes"
	"testing"
)

func withStubbedServer(t *testing.T) *bool {
	t.Helper()
	called := false
	orig := startServer
	startServer = func() { called = true }
	t.Cleanup(func() { startServer = orig })
	return &called
}

func TestRunDefaultsToServer(t *testing.T) {
	called := withStubbedServer(t)
	var out, errOut bytes.Buffer
	if code := Run([]string{"dispensed"}, &out, &errOut); code != 0 {
		t.Fatalf("code = %d", code)
	}
	if !*called {
		t.Fatal("expected startServer to be called")
	}
}

func TestRunServerCommand(t *testing.T) {
	called := withStubbedServer(t)
	var out, errOut bytes.Buffer
	if code := Run([]string{"dispensed", "server"}, &out, &errOut); code != 0 {
		t.Fatalf("code = %d", code)
	}
	if !*called {
		t.Fatal("expected startServer to be called")
	}
}

func TestRunHelpCommand(t *testing.T) {
	withStubbedServer(t)
	var out, errOut bytes.Buffer
	if code := Run([]string{"dispensed", "help"}, &out, &errOut); code != 0 {
		t.Fatalf("code = %d", code)
	}
	if out.Len() == 0 {
		t.Fatal("expected usage text written to stdout")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	withStubbedServer(t)
	var out, errOut bytes.Buffer
	if code := Run([]string{"dispensed", "bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("code = %d, want 2", code)
	}
	if errOut.Len() == 0 {
		t.Fatal("expected error text written to stderr")
	}
}

func TestRunHealthCmdUnreachableServerFails(t *testing.T) {
	t.Setenv("HEALTH_ADDR", ":0")
	var out, errOut bytes.Buffer
	if code := Run([]string{"dispensed", "health"}, &out, &errOut); code != 1 {
		t.Fatalf("code = %d, want 1 for unreachable health server", code)
	}
}
