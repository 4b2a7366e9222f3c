// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is the JWT lifetime; zero means tokens never expire.
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair at startup and reads the token
// lifetime from TOKEN_EXPIRE_TIME (a Go duration, or "never"). Restarting
// the server invalidates outstanding tokens, which is acceptable for
// ephemeral session auth.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}

	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	switch raw {
	case "", "never", "0":
		tokenTTL = 0
	default:
		d, err := time.ParseDuration(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse TOKEN_EXPIRE_TIME: %v\n", err)
			os.Exit(1)
		}
		tokenTTL = d
	}
}

// TokenMaxAge returns the cookie max-age in seconds for issued tokens.
func TokenMaxAge() int {
	return int(tokenTTL.Seconds())
}

// CreateJWT signs a token whose subject is the user's handle.
func CreateJWT(handle string) (string, error) {
	claims := jwt.MapClaims{
		"sub": handle,
	}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns its subject handle.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
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
	handle, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return handle, nil
}
