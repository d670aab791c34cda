// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie that carries the session token.
const CookieName = "auth_token"

// ErrNoKeys is returned when tokens are used before Init or InitFromPath.
var ErrNoKeys = errors.New("auth keys not initialized")

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	keyMu      sync.RWMutex
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenExpiry is the JWT lifetime; zero means tokens never expire.
	tokenExpiry time.Duration
)

// ParseTokenExpiry reads a TOKEN_EXPIRE_TIME value. "never", "0" and "" disable expiry.
func ParseTokenExpiry(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "never" || value == "0" || value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("token expire time must not be negative: %s", value)
	}
	return d, nil
}

// SetTokenExpiry sets the lifetime of tokens created from now on.
func SetTokenExpiry(d time.Duration) {
	keyMu.Lock()
	defer keyMu.Unlock()
	tokenExpiry = d
}

// TokenExpiry returns the configured token lifetime.
func TokenExpiry() time.Duration {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return tokenExpiry
}

// Init generates a fresh ed25519 key pair at runtime.
func Init() error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	keyMu.Lock()
	defer keyMu.Unlock()
	publicKey, privateKey = pub, priv
	return nil
}

// InitFromPath reads raw ed25519 private/public keys from file.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return fmt.Errorf("unexpected ed25519 key sizes: private=%d public=%d", len(privateKeyData), len(publicKeyData))
	}

	keyMu.Lock()
	defer keyMu.Unlock()
	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	return nil
}

// CreateJWT creates a signed JWT token with "sub" = userID and, unless expiry
// is disabled, "exp" = now + TokenExpiry().
func CreateJWT(userID string) (string, error) {
	keyMu.RLock()
	key, expiry := privateKey, tokenExpiry
	keyMu.RUnlock()
	if key == nil {
		return "", ErrNoKeys
	}

	claims := jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
	}
	if expiry > 0 {
		claims["exp"] = time.Now().Add(expiry).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(key)
}

// AuthenticateJWT verifies a JWT string, returns the "sub" field if valid, else an error.
func AuthenticateJWT(tokenString string) (string, error) {
	keyMu.RLock()
	key := publicKey
	keyMu.RUnlock()
	if key == nil {
		return "", ErrNoKeys
	}

	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}

	return userID, nil
}

// TokenFromRequest finds a session token in the auth cookie, a Bearer
// Authorization header or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}

// SessionCookie builds the cookie that carries token.
func SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(TokenExpiry().Seconds()),
	}
}
