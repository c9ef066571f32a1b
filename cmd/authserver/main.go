// Command authserver runs the OAuth 2.0 / OpenID Connect authorization
// server with a store, signing key and seed file chosen by flags,
// environment (AUTHSERVER_*) or a YAML config file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "authserver:", err)
		os.Exit(1)
	}
}
