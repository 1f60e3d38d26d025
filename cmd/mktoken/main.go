// Command mktoken mints a lecturer bearer token for local development and
// smoke tests. Production tokens come from the identity provider.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"rollcall/internal/auth"
	"rollcall/internal/config"
)

func main() {
	subject := flag.String("subject", "", "lecturer id to embed as the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (default ACCESS_TTL)")
	flag.Parse()

	if *subject == "" {
		log.Fatal("-subject is required")
	}

	cfg := config.Load()
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.AccessTTL
	}

	token, exp, err := auth.Issue(*subject, auth.RoleLecturer, cfg.JWTIssuer, cfg.JWTSigningKey, lifetime)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
	fmt.Printf("expires %s\n", exp.Format(time.RFC3339))
}
