// Package main provides a CLI for producing signed request headers against a
// local gateway. Intended for development and smoke testing; production
// clients sign requests in their own SDKs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"filegate/internal/platform/middleware"
	"filegate/internal/signature"
	"filegate/pkg/secrets"
)

const (
	// Dev signing key for local gateways. Will not work against a
	// production deployment.
	devSigningKey = "dev-gateway-key-change-in-production"

	defaultTokenTTL = time.Hour
)

type output struct {
	Headers map[string]string `json:"headers"`
	Token   string            `json:"token,omitempty"`
	Usage   string            `json:"usage"`
}

func main() {
	var (
		method   = flag.String("method", "POST", "HTTP method to sign")
		path     = flag.String("path", "/v1/files", "request path to sign (no query string)")
		body     = flag.String("body", "", "request body to sign")
		bodyFile = flag.String("body-file", "", "read the request body from a file")
		secret   = flag.String("secret", "", "tenant shared secret (required)")
		tenant   = flag.String("tenant", "acct_dev", "tenant id for the bearer token")
		user     = flag.String("user", "user_dev", "user id for the bearer token")
		plan     = flag.String("plan", "starter", "billing plan for the bearer token")
		key      = flag.String("key", devSigningKey, "gateway token signing key")
		noToken  = flag.Bool("no-token", false, "skip minting a bearer token")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret is required")
		flag.Usage()
		os.Exit(1)
	}

	payload := []byte(*body)
	if *bodyFile != "" {
		data, err := os.ReadFile(*bodyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read body file: %v\n", err)
			os.Exit(1)
		}
		payload = data
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	out := output{
		Headers: map[string]string{
			middleware.HeaderSignature: signature.Sign(*method, *path, timestamp, payload, *secret),
			middleware.HeaderTimestamp: timestamp,
			middleware.HeaderSecret:    *secret,
		},
		Usage: fmt.Sprintf("curl -X %s with these headers against %s; signatures expire quickly, so re-run right before sending", *method, *path),
	}

	if !*noToken {
		token, err := mintToken(*key, *tenant, *user, *plan, *secret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: mint token: %v\n", err)
			os.Exit(1)
		}
		out.Token = token
		out.Headers["Authorization"] = "Bearer " + token
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

func mintToken(key, tenant, user, plan, secret string) (string, error) {
	claims := &middleware.IdentityClaims{
		TenantID:          tenant,
		UserID:            user,
		Plan:              plan,
		SecretFingerprint: secrets.Fingerprint(secret),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(defaultTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}
