// Command token mints a bearer token for the marathon HTTP API.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"example.com/marathon/internal/auth"
	"example.com/marathon/internal/config"
	platformauth "example.com/marathon/internal/platform/auth"
)

func main() {
	subject := flag.String("sub", "coach", "token subject")
	scopes := flag.String("scopes", strings.Join([]string{
		auth.ScopeSyncTrigger, auth.ScopeDashboardRead, auth.ScopePlanWrite, auth.ScopeAthletesWrite, auth.ScopeLogsRead,
	}, ","), "comma-separated scopes")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	token, err := platformauth.Issue(platformauth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		*subject, strings.Split(*scopes, ","), *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
