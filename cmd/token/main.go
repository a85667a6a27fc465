package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"collegeportal/internal/attendance"
	"collegeportal/internal/auth"
	"collegeportal/internal/config"
)

// Token prints a signed access token for local testing against the API,
// using the same JWT_SIGNING_KEY and JWT_ISSUER the API reads.
func main() {
	sub := flag.String("sub", "", "user id (uuid)")
	role := flag.String("role", string(attendance.RoleFaculty), "student, faculty or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	id, err := uuid.Parse(*sub)
	if err != nil {
		log.Fatalf("-sub must be a uuid: %v", err)
	}
	switch attendance.Role(*role) {
	case attendance.RoleStudent, attendance.RoleFaculty, attendance.RoleAdmin:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load()
	if cfg.Env == "production" || cfg.Env == "prod" {
		log.Fatal("refusing to mint tokens with APP_ENV=production")
	}
	tok, err := auth.Issue(id.String(), *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok)
}
