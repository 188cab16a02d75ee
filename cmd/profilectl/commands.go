package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/dmitrymomot/profilekit/pkg/file"
	"github.com/dmitrymomot/profilekit/svc/media"
	"github.com/dmitrymomot/profilekit/svc/profile"
	"github.com/dmitrymomot/profilekit/svc/session"
)

const usage = `usage: profilectl <command> [arguments]

commands:
  serve                           run the identity provider and metrics endpoint
  login <email>                   sign in with a magic link
  callback <url>                  complete sign-in from a callback URL
  whoami                          print the signed-in user and profile
  update [flags]                  edit the profile (--name, --country, --bio, --clear-*)
  upload <profile|banner> <file>  upload a profile or banner image
  remove-image <profile|banner>   remove a profile or banner image
  logout                          sign out
`

var errUsage = errors.New("invalid usage")

type command func(a *app, ctx context.Context, args []string) error

var commands = map[string]command{
	"serve":        (*app).serve,
	"callback":     (*app).callback,
	"whoami":       (*app).whoami,
	"update":       (*app).update,
	"upload":       (*app).upload,
	"remove-image": (*app).removeImage,
	"logout":       (*app).logout,
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(stderr, usage)
		return 2
	}
	name, args := args[0], args[1:]

	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(stderr, "profilectl:", err)
		return 1
	}

	if err := execute(ctx, cfg, name, args, stdout, deps{}); err != nil {
		fmt.Fprintln(stderr, "profilectl:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		return 1
	}
	return 0
}

func execute(ctx context.Context, cfg settings, name string, args []string, stdout io.Writer, d deps) error {
	if name == "login" {
		return executeLogin(ctx, cfg, args, stdout, d)
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	a, err := newApp(ctx, cfg, stdout, d)
	if err != nil {
		return err
	}
	defer a.Close()
	return cmd(a, ctx, args)
}

// executeLogin binds the loopback listener before wiring the app so the
// identity service can link back to it.
func executeLogin(ctx context.Context, cfg settings, args []string, stdout io.Writer, d deps) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: login takes one email address", errUsage)
	}
	ln, err := net.Listen("tcp", cfg.App.LoginAddr)
	if err != nil {
		return fmt.Errorf("login listener: %w", err)
	}
	defer ln.Close()

	if servesIdentity(cfg) {
		cfg.Identity.BaseURL = "http://" + ln.Addr().String()
	}

	a, err := newApp(ctx, cfg, stdout, d)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.login(ctx, ln, args[0])
}

func (a *app) callback(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: callback takes one URL", errUsage)
	}
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	state, err := a.session.ExchangeCallback(ctx, args[0])
	if err != nil {
		return err
	}
	return a.print(state)
}

func (a *app) whoami(ctx context.Context, _ []string) error {
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	return a.print(a.session.Snapshot())
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		name, country, bio                optionalString
		clearName, clearCountry, clearBio bool
	)
	fs.Var(&name, "name", "display name")
	fs.Var(&country, "country", "country")
	fs.Var(&bio, "bio", "short biography")
	fs.BoolVar(&clearName, "clear-name", false, "remove the display name")
	fs.BoolVar(&clearCountry, "clear-country", false, "remove the country")
	fs.BoolVar(&clearBio, "clear-bio", false, "remove the biography")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	patch := profile.Patch{
		Name:    name.field(clearName),
		Country: country.field(clearCountry),
		Bio:     bio.field(clearBio),
	}
	if patch.IsEmpty() {
		return fmt.Errorf("%w: nothing to update", errUsage)
	}

	if err := a.session.Start(ctx); err != nil {
		return err
	}
	p, err := a.session.UpdateProfile(ctx, patch)
	if err != nil {
		return err
	}
	return a.printJSON(p)
}

func (a *app) upload(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: upload takes a slot and a file", errUsage)
	}
	slot, err := media.ParseSlot(args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if err := a.session.Start(ctx); err != nil {
		return err
	}
	p, err := a.session.UploadImage(ctx, slot, media.Asset{
		Body:     f,
		Name:     info.Name(),
		MIMEType: file.DetectMIMEType(head[:n]),
		Size:     info.Size(),
	})
	if err != nil {
		return err
	}
	return a.printJSON(p)
}

func (a *app) removeImage(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: remove-image takes a slot", errUsage)
	}
	slot, err := media.ParseSlot(args[0])
	if err != nil {
		return err
	}
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	p, err := a.session.RemoveImage(ctx, slot)
	if err != nil {
		return err
	}
	return a.printJSON(p)
}

func (a *app) logout(ctx context.Context, _ []string) error {
	if err := a.session.Start(ctx); err != nil {
		return err
	}
	if !a.session.Snapshot().IsAuthenticated() {
		return session.ErrNotAuthenticated
	}
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

// stateView is the printable form of a session.State.
type stateView struct {
	Phase   session.Phase    `json:"phase"`
	UserID  string           `json:"user_id,omitempty"`
	Email   string           `json:"email,omitempty"`
	Profile *profile.Profile `json:"profile,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (a *app) print(state session.State) error {
	view := stateView{Phase: state.Phase, UserID: state.UserID(), Profile: state.Profile}
	if state.Identity != nil {
		view.Email = state.Identity.Email
	}
	if state.Err != nil {
		view.Error = state.Err.Error()
	}
	return a.printJSON(view)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optionalString is a flag that remembers whether it was given.
type optionalString struct {
	value string
	set   bool
}

func (o *optionalString) String() string { return o.value }

func (o *optionalString) Set(v string) error {
	o.value, o.set = v, true
	return nil
}

func (o optionalString) field(null bool) profile.Field[string] {
	switch {
	case null:
		return profile.Null[string]()
	case o.set:
		return profile.Set(o.value)
	}
	return profile.Field[string]{}
}
