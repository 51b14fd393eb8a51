package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken("usr-001", RoleEditor, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("IssueToken() returned empty token")
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "usr-001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-001")
	}
	if claims.Role != RoleEditor {
		t.Errorf("Role = %q, want %q", claims.Role, RoleEditor)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := IssueToken("usr-001", RoleViewer, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	unknownRole, err := IssueToken("usr-001", Role("owner"), testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	noSubject, err := IssueToken("", RoleViewer, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	expiredClaims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr-001",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: RoleViewer,
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001"},
		Role:             RoleViewer,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token without expiry: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "wrong-secret"},
		{"garbage", "not-a-valid-jwt", testSecret},
		{"empty", "", testSecret},
		{"malformed", "abc.def", testSecret},
		{"unknown role", unknownRole, testSecret},
		{"missing subject", noSubject, testSecret},
		{"expired", expired, testSecret},
		{"no expiry", noExpiry, testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	token, err := IssueToken("usr-001", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(15 * time.Minute))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL should be ~15 minutes, got expiry diff of %v", diff)
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermFloorplanView, true},
		{RoleViewer, PermFloorplanConfigure, false},
		{RoleEditor, PermFloorplanConfigure, true},
		{RoleEditor, PermSystemAdmin, false},
		{RoleAdmin, PermSystemAdmin, true},
		{Role("unknown"), PermFloorplanView, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}

	if PermissionsForRole(Role("unknown")) != nil {
		t.Error("PermissionsForRole(unknown) should be nil")
	}
	perms := PermissionsForRole(RoleAdmin)
	perms[0] = "mutated"
	if PermissionsForRole(RoleAdmin)[0] == "mutated" {
		t.Error("PermissionsForRole should return a copy")
	}
}
