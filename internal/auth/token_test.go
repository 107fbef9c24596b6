package auth

import (
	"strings"
	"testing"
)

func TestResumeTokenRoundTrip(t *testing.T) {
	tok, err := NewResumeToken("P000042", "prod-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := VerifyResumeToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Identity != "P000042" || claims.WorldID != "prod-1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestResumeTokenRejectsTampering(t *testing.T) {
	tok, err := NewResumeToken("P000001", "w")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", tok)
	}
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := VerifyResumeToken(forged); err == nil {
		t.Fatalf("forged signature accepted")
	}
	if _, err := VerifyResumeToken("not-a-token"); err == nil {
		t.Fatalf("garbage accepted")
	}
}
