package synth

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
)

func TestJWTCredential_IssuesParsableToken(t *testing.T) {
	cred := NewJWTCredential("access-key-1", "super-secret")

	token, err := cred.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok {
		t.Fatal("expected jwtClaims")
	}
	if claims.AccessKey != "access-key-1" {
		t.Errorf("expected access key to round-trip, got %q", claims.AccessKey)
	}
}

func TestJWTCredential_CachesUntilNearExpiry(t *testing.T) {
	cred := NewJWTCredential("access-key-1", "super-secret")

	first, err := cred.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cred.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected cached token to be reused within its validity window")
	}
}

func TestStaticToken(t *testing.T) {
	var tok CredentialSource = StaticToken("fixed-key")
	got, err := tok.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "fixed-key") {
		t.Errorf("expected static token value, got %q", got)
	}
}
