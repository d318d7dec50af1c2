package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emanuelteklu/cc-sidecar/pkg/auth"
	"github.com/emanuelteklu/cc-sidecar/pkg/config"
)

var tokenLoadConfigFn = config.Load

// runTokenCommand prints a bearer token signed with the configured secret,
// for local testing against a non-dev server.
func runTokenCommand(args []string, stdout io.Writer) error {
	cfg, err := tokenLoadConfigFn()
	if err != nil {
		return withExitCode(err, 2)
	}

	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stdout)
	subject := fs.String("subject", cfg.Auth.AdminUserID, "subject (sub claim) of the token")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return withExitCode(err, 2)
	}

	if cfg.Auth.DevMode() {
		return withExitCode(errors.New("no signing secret configured (set SUPABASE_JWT_SECRET); dev mode needs no token"), 2)
	}
	sub := strings.TrimSpace(*subject)
	if sub == "" {
		return withExitCode(errors.New("--subject is required when ADMIN_USER_ID is unset"), 2)
	}

	tok, err := auth.SignTokenWithIssuer(cfg.Auth.JWTSecret, sub, cfg.Auth.Issuer(), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok)
	return nil
}
