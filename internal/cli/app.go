package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-marketplace/internal/backend"
	"github.com/iliyamo/campus-marketplace/internal/client"
	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/feed"
	"github.com/iliyamo/campus-marketplace/internal/pipeline"
	"github.com/iliyamo/campus-marketplace/internal/session"
)

// app is the client side of one command invocation. The feed and the post
// pipeline only exist while a user is signed in.
type app struct {
	api     *client.Client
	session *session.Manager
	market  config.Market

	mu       sync.Mutex
	feed     *feed.Controller
	pipeline *pipeline.Pipeline
	unsub    func()
}

func newApp(g *globalFlags) *app {
	api := client.New(g.apiURL, client.WithSessionStore(client.FileSessionStore{Path: g.sessionFile}))
	market := config.LoadMarket()
	a := &app{api: api, session: session.New(api, market), market: market}
	a.unsub = a.session.Subscribe(a.onState)
	return a
}

// onState mounts the signed-in views on Authenticated and drops them on
// Unauthenticated.
func (a *app) onState(state session.State, _ *backend.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch state {
	case session.Authenticated:
		if a.feed == nil {
			a.feed = feed.New(a.api, a.session)
			a.pipeline = pipeline.New(a.api, a.api, a.api, a.feed, a.market)
		}
	default:
		a.feed = nil
		a.pipeline = nil
	}
}

func (a *app) start(ctx context.Context) error {
	return a.session.Start(ctx)
}

func (a *app) close() {
	a.unsub()
	a.session.Close()
}

// views returns the mounted feed and pipeline, or ErrNoSession when nobody
// is signed in.
func (a *app) views() (*feed.Controller, *pipeline.Pipeline, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.feed == nil {
		return nil, nil, backend.ErrNoSession
	}
	return a.feed, a.pipeline, nil
}

// withApp runs fn against a started app and closes it afterwards.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	a := newApp(g)
	defer a.close()
	ctx := cmd.Context()
	if err := a.start(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

// requireSession wraps withApp for commands that need a signed-in user.
func requireSession(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app, f *feed.Controller, p *pipeline.Pipeline) error) error {
	return withApp(cmd, g, func(ctx context.Context, a *app) error {
		f, p, err := a.views()
		if err != nil {
			return fmt.Errorf("%w: run \"marketplace login\" first", err)
		}
		return fn(ctx, a, f, p)
	})
}

// prompt reads one line from in after printing label to out.
func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// password returns the flag value, then $MARKETPLACE_PASSWORD, and finally
// prompts for it.
func password(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("MARKETPLACE_PASSWORD"); v != "" {
		return v, nil
	}
	return prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
}

// stdinConfirmer asks a y/N question on the command's streams.
func stdinConfirmer(cmd *cobra.Command) pipeline.Confirmer {
	return pipeline.ConfirmFunc(func(q string) bool {
		ans, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), q+" [y/N] ")
		if err != nil {
			return false
		}
		ans = strings.ToLower(ans)
		return ans == "y" || ans == "yes"
	})
}
