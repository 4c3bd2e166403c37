// issue_token mints a bearer token for an owner id with the service's secret.
// Identity lives outside this service; the tool covers local setups and ops.
package main

import (
	"flag"
	"fmt"
	"os"

	"gallery_planner/internal/config"
	"gallery_planner/internal/lib/jwt"

	"github.com/google/uuid"
)

func main() {
	var owner string
	flag.StringVar(&owner, "owner", "", "owner uuid, random if empty")

	cfg := config.MustLoad()

	ownerID := uuid.New()
	if owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid owner id %q: %v\n", owner, err)
			os.Exit(2)
		}
		ownerID = id
	}

	token, err := jwt.NewToken(ownerID, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "owner: %s\n", ownerID)
	fmt.Println(token)
}
