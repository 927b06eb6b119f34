// Command authctl is a terminal front-end over the session store.
//
//	authctl login -username alice -password secret
//	authctl whoami
//	authctl update-profile -username alicia
//	authctl logout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
	"github.com/Ferrington/bug-wars-client/internal/core/outcome"
	"github.com/Ferrington/bug-wars-client/internal/core/ports"
	"github.com/Ferrington/bug-wars-client/internal/core/service"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/authapi"
	redisdb "github.com/Ferrington/bug-wars-client/internal/infrastructure/db/redis"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/queue"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/storage"
	"github.com/Ferrington/bug-wars-client/internal/pkg/config"
	"github.com/Ferrington/bug-wars-client/pkg/logger"
)

const usage = `usage: authctl <command> [flags]

commands:
  register        -username -password [-email]
  login           -username -password
  logout
  whoami
  refresh
  update-profile  [-username] [-email] [-password]
  me
`

var meStatuses = outcome.Config{
	SuccessStatuses: []int{http.StatusOK},
	ErrorStatuses: map[int]outcome.Message{
		http.StatusUnauthorized: outcome.Text("You must be logged in."),
		http.StatusNotFound:     outcome.Text("User not found."),
	},
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], envconfig.OsLookuper(), os.Stdout, os.Stderr))
}

type app struct {
	session  *service.SessionService
	client   *authapi.Client
	notifier *queue.Notifier
	closeFn  func() error
	out      io.Writer
}

func run(ctx context.Context, args []string, env envconfig.Lookuper, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	cfg, err := config.LoadClientFrom(ctx, env)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: stderr, Service: "authctl"})

	a, err := newApp(ctx, cfg, log, stdout)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer a.shutdown(log)

	switch cmd {
	case "register":
		return a.report(a.session.Register(ctx, domain.RegisterDTO{Username: *username, Email: *email, Password: *password}),
			"registered "+*username)
	case "login":
		o := a.session.Login(ctx, domain.LoginDTO{Username: *username, Password: *password})
		return a.report(o, "logged in as "+describe(a.session.User()))
	case "logout":
		a.session.Logout(ctx, false)
		fmt.Fprintln(stdout, "logged out")
		return 0
	case "whoami":
		if !a.session.IsAuthenticated() {
			fmt.Fprintln(stdout, "not logged in")
			return 1
		}
		fmt.Fprintln(stdout, describe(a.session.User()))
		return 0
	case "refresh":
		return a.refresh(ctx)
	case "update-profile":
		o := a.session.UpdateUserProfile(ctx, domain.ProfileUpdateDTO{Username: *username, Email: *email, Password: *password})
		return a.report(o, "profile updated")
	case "me":
		o := outcome.Do(ctx, a.client.Me, meStatuses)
		if !o.OK() {
			return a.report(o, "")
		}
		fmt.Fprintln(stdout, string(o.Data))
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

// newApp is the composition root: storage, notifier, API client, session.
func newApp(ctx context.Context, cfg *config.ClientConfig, log zerolog.Logger, out io.Writer) (*app, error) {
	store, closeFn, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	transport := authapi.NewTransport(nil, log)
	client, err := authapi.NewClient(cfg.APIURL, authapi.NewHTTPClient(cfg.HTTPTimeout, transport))
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	notifier := queue.NewNotifier(cfg.HTTPTimeout, log)
	nav := ports.NavigatorFunc(func(route string) {
		log.Debug().Str("route", route).Msg("navigate")
	})

	session := service.NewSessionService(client, store, nav, notifier, log, service.SessionOptions{
		RedirectOnForcedLogout: cfg.RedirectOnForcedLogout,
	})
	transport.Bind(session)
	session.Load(ctx)

	return &app{session: session, client: client, notifier: notifier, closeFn: closeFn, out: out}, nil
}

func openStorage(ctx context.Context, cfg *config.ClientConfig) (ports.Storage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemory(nil), noop, nil
	case config.StorageRedis:
		rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return nil, nil, err
		}
		return redisdb.NewSessionStorage(rdb, cfg.StorageProfile), rdb.Close, nil
	default:
		path := cfg.StoragePath
		if path == "" {
			p, err := storage.DefaultPath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		return storage.NewFile(path), noop, nil
	}
}

// shutdown lets the logout notification go out before the process exits.
func (a *app) shutdown(log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.notifier.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("pending notifications abandoned")
	}
	if err := a.closeFn(); err != nil {
		log.Warn().Err(err).Msg("close storage")
	}
}

func (a *app) report(o outcome.Outcome, success string) int {
	if !o.OK() {
		fmt.Fprintln(a.out, o.Error)
		return 1
	}
	fmt.Fprintln(a.out, success)
	return 0
}

func (a *app) refresh(ctx context.Context) int {
	_, err := a.session.AttemptToRefreshToken(ctx, nil)
	switch {
	case errors.Is(err, domain.ErrNoRefreshToken):
		fmt.Fprintln(a.out, "not logged in")
		return 1
	case err != nil:
		fmt.Fprintln(a.out, err)
		return 1
	case !a.session.IsAuthenticated():
		fmt.Fprintln(a.out, "session ended by server")
		return 1
	}
	fmt.Fprintln(a.out, "access token refreshed")
	return 0
}

func describe(u domain.User) string {
	if len(u.Roles) == 0 {
		return u.Username
	}
	return fmt.Sprintf("%s (%s)", u.Username, strings.Join(u.Roles, ", "))
}
