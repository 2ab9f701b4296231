// Package main provides a CLI tool for generating test session tokens.
// These tokens use the dev signing key and will NOT work against a server
// configured with a real key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "dochost/internal/jwt_token"
)

const (
	// Dev signing key - matches config defaults when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "dochost"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Username  string            `json:"username"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	username := flag.String("username", "testuser", "Username to embed in the token")
	signingKey := flag.String("signing-key", "", "Signing key. Defaults to the dev key or JWT_SIGNING_KEY.")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token lifetime")
	flag.Parse()

	key := *signingKey
	if key == "" {
		key = os.Getenv("JWT_SIGNING_KEY")
	}
	if key == "" {
		key = devSigningKey
	}

	svc := jwttoken.NewJWTService(key, defaultIssuer, *ttl)
	token, err := svc.GenerateSessionToken(context.Background(), *username)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	out := tokenOutput{
		Token:     token,
		Username:  *username,
		ExpiresIn: ttl.String(),
		Usage: map[string]string{
			"curl": fmt.Sprintf("curl -H 'Authorization: Bearer %s' http://localhost:8080/", token),
		},
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
