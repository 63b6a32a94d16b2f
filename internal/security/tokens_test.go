package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAccessAndRefresh(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	sessionID, userID := "s1", "u1"

	access, accessClaims, err := p.IssueAccess(sessionID, userID)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" || accessClaims.ID == "" {
		t.Fatal("access token or jti empty")
	}
	if accessClaims.TokenType != TokenTypeAccess {
		t.Errorf("access typ = %q", accessClaims.TokenType)
	}
	if accessClaims.ExpiresAt.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	refresh, refreshClaims, err := p.IssueRefresh(sessionID, userID, false)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if refresh == "" || refreshClaims.ID == "" {
		t.Fatal("refresh token or jti empty")
	}
	if refreshClaims.TokenType != TokenTypeRefresh {
		t.Errorf("refresh typ = %q", refreshClaims.TokenType)
	}
	if refreshClaims.ID == accessClaims.ID {
		t.Error("jti must be unique per issuance")
	}

	got, err := p.VerifyRefresh(refresh)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if got.SessionID != sessionID || got.ID != refreshClaims.ID || got.Subject != userID {
		t.Errorf("VerifyRefresh: got sessionID=%q jti=%q sub=%q", got.SessionID, got.ID, got.Subject)
	}
}

func TestTokenProvider_PersistentRefreshGetsLongerTTL(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	_, standard, err := p.IssueRefresh("s1", "u1", false)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	_, persistent, err := p.IssueRefresh("s1", "u1", true)
	if err != nil {
		t.Fatalf("IssueRefresh persistent: %v", err)
	}
	if !persistent.ExpiresAt.After(standard.ExpiresAt.Time) {
		t.Errorf("persistent exp %v should be after standard exp %v", persistent.ExpiresAt, standard.ExpiresAt)
	}
}

func TestTokenProvider_VerifyRejectsWrongType(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	access, _, err := p.IssueAccess("s1", "u1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.VerifyRefresh(access); err != ErrInvalidToken {
		t.Errorf("access token as refresh: want ErrInvalidToken, got %v", err)
	}
	refresh, _, err := p.IssueRefresh("s1", "u1", false)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := p.VerifyAccess(refresh); err != ErrInvalidToken {
		t.Errorf("refresh token as access: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_VerifyInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.VerifyRefresh("invalid-token"); err != ErrInvalidToken {
		t.Errorf("VerifyRefresh invalid token: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.VerifyAccess(""); err != ErrInvalidToken {
		t.Errorf("VerifyAccess empty token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_VerifyExpired(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	p := NewTokenProvider(signer, pub, "test-issuer", "test-audience", -time.Minute, -time.Minute, -time.Minute)

	access, _, err := p.IssueAccess("s1", "u1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.VerifyAccess(access); err != ErrInvalidToken {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_VerifyWrongIssuer(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	issuerA := NewTokenProvider(signer, pub, "issuer-a", "aud", time.Hour, time.Hour, time.Hour)
	issuerB := NewTokenProvider(signer, pub, "issuer-b", "aud", time.Hour, time.Hour, time.Hour)

	token, _, err := issuerA.IssueAccess("s1", "u1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := issuerB.VerifyAccess(token); err != ErrInvalidToken {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}
}
