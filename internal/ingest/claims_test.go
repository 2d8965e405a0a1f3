package ingest

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestClaimsExclusiveInProcess(t *testing.T) {
	claims, err := NewClaims(filepath.Join(t.TempDir(), "locks"))
	if err != nil {
		t.Fatalf("new claims: %v", err)
	}
	path := filepath.Join(t.TempDir(), "issue.cbz")

	release, err := claims.Acquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !claims.Held(path) {
		t.Fatal("expected path held")
	}
	if _, err := claims.Acquire(path); !errors.Is(err, ErrClaimed) {
		t.Fatalf("expected ErrClaimed, got %v", err)
	}

	release()
	release()
	if claims.Held(path) {
		t.Fatal("expected path released")
	}
	again, err := claims.Acquire(path)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again()
}

func TestClaimsExcludeOtherOwners(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	first, err := NewClaims(dir)
	if err != nil {
		t.Fatalf("new claims: %v", err)
	}
	second, err := NewClaims(dir)
	if err != nil {
		t.Fatalf("new claims: %v", err)
	}
	path := filepath.Join(t.TempDir(), "issue.cbz")

	release, err := first.Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := second.Acquire(path); !errors.Is(err, ErrClaimed) {
		t.Fatalf("expected lock file to exclude second owner, got %v", err)
	}
	release()
	other, err := second.Acquire(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	other()
}

func TestClaimKeyNormalizesPath(t *testing.T) {
	base := t.TempDir()
	a, err := claimKey(filepath.Join(base, "dir", "..", "issue.cbz"))
	if err != nil {
		t.Fatalf("claim key: %v", err)
	}
	b, err := claimKey(filepath.Join(base, "issue.cbz"))
	if err != nil {
		t.Fatalf("claim key: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal keys, got %s and %s", a, b)
	}
}
