// Command devtoken prints an RS256 access token accepted by comms-service.
// Local development only: production tokens come from the auth service.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/security"
)

var (
	keyPath  = flag.String("key", "./keys/jwt_private.pem", "RSA private key (PKCS1 or PKCS8 PEM)")
	subject  = flag.String("sub", "", "user id")
	role     = flag.String("role", domain.RoleClient, "role claim: client, vet, admin, service")
	issuer   = flag.String("iss", "vetclinic-auth", "issuer")
	audience = flag.String("aud", "vetclinic", "audience")
	ttl      = flag.Duration("ttl", time.Hour, "token lifetime")
)

func main() {
	flag.Parse()
	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -sub <userId> [-role vet] [-key path]")
		os.Exit(2)
	}

	key, err := security.LoadRSAPrivateKeyFromPEM(*keyPath)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	tok, err := security.NewSigner(key, *issuer, *audience, *ttl).
		Sign(domain.Identity{UserID: *subject, Role: *role}, time.Now())
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok)
}
