// Command devtoken prints a bearer token for local testing, signed with the
// same JWT_SIGNING_KEY and JWT_ISSUER the server reads.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/platform/config"
)

func main() {
	user := flag.String("user", "registrar-1", "user id recorded as the actor")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer).GenerateAccessToken(*user, *name, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
