package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, mistyped, expired, or fails signature checks.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenType distinguishes access from refresh credentials in the typ claim.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the fixed claims structure carried by every credential.
// The typ claim is validated on verify so an access token can never be
// presented where a refresh token is expected, and vice versa.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"typ"`
	SessionID string    `json:"session_id"`
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256 (private/public key).
// The signing key is loaded once at startup and never mutated afterwards.
type TokenProvider struct {
	privateKey    crypto.Signer
	publicKey     crypto.PublicKey
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rememberMeTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on verify. rememberMeTTL is
// applied to refresh tokens issued for persistent ("remember me") sessions.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL, rememberMeTTL time.Duration) *TokenProvider {
	if rememberMeTTL < refreshTTL {
		rememberMeTTL = refreshTTL
	}
	return &TokenProvider{
		privateKey:    privateKey,
		publicKey:     publicKey,
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		rememberMeTTL: rememberMeTTL,
	}
}

// IssueAccess issues a short-lived access JWT bound to the given session and user.
// Returns the signed token and its claims. Every issuance carries a fresh random jti.
func (p *TokenProvider) IssueAccess(sessionID, userID string) (string, *Claims, error) {
	return p.issue(TokenTypeAccess, sessionID, userID, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT bound to the given session and user.
// Persistent sessions get the remember-me TTL. Caller must store the returned jti
// on the session; it is the rotation tracking key.
func (p *TokenProvider) IssueRefresh(sessionID, userID string, persistent bool) (string, *Claims, error) {
	ttl := p.refreshTTL
	if persistent {
		ttl = p.rememberMeTTL
	}
	return p.issue(TokenTypeRefresh, sessionID, userID, ttl)
}

func (p *TokenProvider) issue(typ TokenType, sessionID, userID string, ttl time.Duration) (string, *Claims, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", nil, err
	}
	now := time.Now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: typ,
		SessionID: sessionID,
	}
	token, err := p.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// VerifyAccess parses and validates an access token (signature, exp, iss, aud, typ).
func (p *TokenProvider) VerifyAccess(tokenString string) (*Claims, error) {
	return p.verify(tokenString, TokenTypeAccess)
}

// VerifyRefresh parses and validates a refresh token (signature, exp, iss, aud, typ).
func (p *TokenProvider) VerifyRefresh(tokenString string) (*Claims, error) {
	return p.verify(tokenString, TokenTypeRefresh)
}

// verify checks signature and time claims only; revocation and session state are
// the caller's concern.
func (p *TokenProvider) verify(tokenString string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == p.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
