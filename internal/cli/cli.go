// Package cli implements the webclient command line.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/utafrali/EcommerceGo/webclient/internal/auth"
	"github.com/utafrali/EcommerceGo/webclient/internal/imageopt"
	"github.com/utafrali/EcommerceGo/webclient/internal/media"
	"github.com/utafrali/EcommerceGo/webclient/internal/session"
	"github.com/utafrali/EcommerceGo/webclient/pkg/health"
)

// ErrUsage is returned for unknown commands and bad arguments.
var ErrUsage = errors.New("usage error")

// ErrUnhealthy is returned by check when a critical dependency is down.
var ErrUnhealthy = errors.New("dependency check failed")

const usage = `usage: webclient <command> [flags] [args]

commands:
  login [-remember] [-password-stdin] <email>
  logout
  status
  upload -owner-type TYPE -owner-id ID [-alt TEXT] <file>
  optimize <in> <out>
  check
`

// Session is the login state owner.
type Session interface {
	Login(ctx context.Context, email, password string, remember bool) error
	Logout(ctx context.Context) error
	State() session.State
	Message() string
}

// Uploader uploads media files.
type Uploader interface {
	Upload(ctx context.Context, in media.UploadInput, onProgress func(int)) (*media.MediaFile, error)
}

// Optimizer shrinks images.
type Optimizer interface {
	Optimize(ctx context.Context, f *imageopt.File) *imageopt.File
}

// TokenLookup reports the stored credential and the scope holding it.
type TokenLookup interface {
	Lookup(ctx context.Context) (token, scope string)
}

// HealthChecker probes the client's dependencies.
type HealthChecker interface {
	Check(ctx context.Context) health.Response
}

// Deps are the collaborators of the command line.
type Deps struct {
	Session   Session
	Uploader  Uploader
	Optimizer Optimizer
	Tokens    TokenLookup
	Health    HealthChecker
}

// CLI runs one command per invocation.
type CLI struct {
	deps Deps
	in   io.Reader
	out  io.Writer

	// readPassword is a seam for term.ReadPassword.
	readPassword func(fd int) ([]byte, error)
}

// New creates a command line reading from in and writing to out.
func New(deps Deps, in io.Reader, out io.Writer) *CLI {
	return &CLI{deps: deps, in: in, out: out, readPassword: term.ReadPassword}
}

// Run executes the command named by args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "status":
		return c.status(ctx)
	case "upload":
		return c.upload(ctx, rest)
	case "optimize":
		return c.optimize(ctx, rest)
	case "check":
		return c.check(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (c *CLI) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func (c *CLI) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	remember := fs.Bool("remember", false, "keep the session after the machine restarts")
	fromStdin := fs.Bool("password-stdin", false, "read the password from standard input")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: login takes exactly one email", ErrUsage)
	}
	email := fs.Arg(0)

	password, err := c.password(*fromStdin)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if err := c.deps.Session.Login(ctx, email, password, *remember); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged in as %s\n", email)
	return nil
}

func (c *CLI) password(fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(c.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(c.out, "Password: ")
	pw, err := c.readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(c.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (c *CLI) logout(ctx context.Context) error {
	if err := c.deps.Session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Logged out")
	return nil
}

func (c *CLI) status(ctx context.Context) error {
	fmt.Fprintf(c.out, "state:   %s\n", c.deps.Session.State())
	if msg := c.deps.Session.Message(); msg != "" {
		fmt.Fprintf(c.out, "message: %s\n", msg)
	}

	token, scope := c.deps.Tokens.Lookup(ctx)
	if token == "" {
		return nil
	}
	fmt.Fprintf(c.out, "scope:   %s\n", scope)
	if sub := auth.Subject(token); sub != "" {
		fmt.Fprintf(c.out, "subject: %s\n", sub)
	}
	if exp, ok := auth.ExpiresAt(token); ok {
		fmt.Fprintf(c.out, "expires: %s\n", exp.UTC().Format(time.RFC3339))
	}
	return nil
}

func (c *CLI) upload(ctx context.Context, args []string) error {
	fs := c.flags("upload")
	ownerType := fs.String("owner-type", media.OwnerTypeProduct, "owner type: product, user or category")
	ownerID := fs.String("owner-id", "", "owner identifier")
	alt := fs.String("alt", "", "alternative text")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: upload takes exactly one file", ErrUsage)
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	p := &progressPrinter{out: c.out}
	file, err := c.deps.Uploader.Upload(ctx, media.UploadInput{
		OwnerID:     *ownerID,
		OwnerType:   *ownerType,
		FileName:    filepath.Base(path),
		ContentType: contentTypeOf(path),
		AltText:     *alt,
		Data:        data,
	}, p.print)
	p.done()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Uploaded %s (%d bytes) %s\n", file.ID, file.Size, file.URL)
	return nil
}

func (c *CLI) optimize(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: optimize takes an input and an output path", ErrUsage)
	}
	in, out := args[0], args[1]

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}

	src := &imageopt.File{Name: filepath.Base(in), ContentType: contentTypeOf(in), Data: data}
	res := c.deps.Optimizer.Optimize(ctx, src)
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	if res == src {
		fmt.Fprintf(c.out, "%s: kept original (%d bytes)\n", in, src.Size())
		return nil
	}
	fmt.Fprintf(c.out, "%s: %d -> %d bytes (%s)\n", in, src.Size(), res.Size(), res.ContentType)
	return nil
}

func (c *CLI) check(ctx context.Context) error {
	resp := c.deps.Health.Check(ctx)
	for _, name := range resp.Names() {
		r := resp.Checks[name]
		line := fmt.Sprintf("%-12s %-4s %s", name, r.Status, r.Duration.Round(time.Millisecond))
		if !r.Critical {
			line += " (optional)"
		}
		if r.Error != "" {
			line += ": " + r.Error
		}
		fmt.Fprintln(c.out, line)
	}
	fmt.Fprintf(c.out, "overall: %s\n", resp.Status)

	if resp.Status == health.StatusDown {
		return ErrUnhealthy
	}
	return nil
}

// contentTypeOf guesses from the extension; an empty result lets the
// receiver sniff the content.
func contentTypeOf(path string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ""
}

type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed bool
}

func (p *progressPrinter) print(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\rUploading... %3d%%", pct)
	p.printed = true
}

func (p *progressPrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.out)
	}
}
