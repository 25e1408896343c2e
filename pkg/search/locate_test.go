package search

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFindBrowserPrefersEarlierCandidates(t *testing.T) {
	dir := t.TempDir()
	chrome := filepath.Join(dir, "chrome")
	edge := filepath.Join(dir, "msedge")
	for _, p := range []string{chrome, edge} {
		if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0700); err != nil {
			t.Fatal(err)
		}
	}

	got, err := findBrowser([]string{chrome, edge})
	if err != nil {
		t.Fatalf("findBrowser failed: %v", err)
	}
	if got != chrome {
		t.Errorf("findBrowser = %q, want %q", got, chrome)
	}
}

func TestFindBrowserSkipsMissingAndDirectories(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope")
	asDir := filepath.Join(dir, "isdir")
	if err := os.Mkdir(asDir, 0750); err != nil {
		t.Fatal(err)
	}
	real := filepath.Join(dir, "browser")
	if err := os.WriteFile(real, []byte("x"), 0700); err != nil {
		t.Fatal(err)
	}

	got, err := findBrowser([]string{missing, asDir, real})
	if err != nil {
		t.Fatalf("findBrowser failed: %v", err)
	}
	if got != real {
		t.Errorf("findBrowser = %q, want %q", got, real)
	}
}

func TestFindBrowserNotFound(t *testing.T) {
	_, err := findBrowser([]string{filepath.Join(t.TempDir(), "absent")})
	if !errors.Is(err, ErrBrowserNotFound) {
		t.Errorf("err = %v, want ErrBrowserNotFound", err)
	}
}
