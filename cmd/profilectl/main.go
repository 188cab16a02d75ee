// Command profilectl signs in with a magic link and manages the signed-in
// user's profile. It also runs the identity provider those links point to.
//
// Configuration comes from the environment or a .env file; see the *Config
// types of the packages it wires.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
