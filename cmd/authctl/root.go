package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/MrEthical07/authsession"
	"github.com/spf13/cobra"
)

var errRejected = errors.New("rejected by backend")

type options struct {
	backend    string
	cookieFile string
	envFiles   []string
	verbose    bool
}

// app is the per-invocation state shared by subcommands.
type app struct {
	opts   *options
	out    io.Writer
	client *authsession.Client
	jar    http.CookieJar
	store  *cookieFile
}

func newRootCmd(a *app) *cobra.Command {
	opts := a.opts

	root := &cobra.Command{
		Use:   "authctl",
		Short: "Drive a cookie-session auth backend from the terminal",
		Long: `authctl signs in to a cookie-session (Sanctum-style) auth backend and keeps
the session cookies in a local file, so later commands act as the same user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.open(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "backend base URL (overrides BACKEND_URL)")
	root.PersistentFlags().StringVar(&opts.cookieFile, "cookies", ".authctl-cookies.json", "file holding session cookies between runs")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env.local"}, "dotenv files to load")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests and redirects")

	root.AddCommand(
		whoamiCmd(a),
		loginCmd(a),
		registerCmd(a),
		forgotPasswordCmd(a),
		resetPasswordCmd(a),
		resendVerificationCmd(a),
		logoutCmd(a),
		versionCmd(),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	level := slog.LevelWarn
	if a.opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	authsession.LoadEnvFiles(logger, a.opts.envFiles...)
	cfg, err := authsession.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	if a.opts.backend != "" {
		cfg.API.BaseURL = a.opts.backend
	}
	// One process, one user: the memory cache is enough.
	cfg.Cache.Backend = authsession.CacheMemory

	client, err := authsession.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithNavigator(authsession.NavigatorFunc(func(_ context.Context, route string) error {
			fmt.Fprintf(a.out, "-> %s\n", route)
			return nil
		})).
		Build()
	if err != nil {
		return err
	}
	for _, w := range cfg.Lint() {
		logger.Debug("config warning", "code", w.Code, "message", w.Message)
	}

	a.client = client
	a.jar = authsession.NewCookieJar()
	a.store = &cookieFile{path: a.opts.cookieFile}
	return a.store.Load(a.jar, client.BackendURL())
}

func (a *app) close() error {
	if a.client == nil {
		return nil
	}
	client := a.client
	a.client = nil
	defer client.Close()
	return a.store.Save(a.jar, client.BackendURL())
}

func (a *app) mount(ctx context.Context, opts authsession.MountOptions) (*authsession.Controller, error) {
	opts.Jar = a.jar
	return a.client.Mount(ctx, opts)
}

// report prints a Result and turns field errors into a command failure.
func (a *app) report(res authsession.Result, success string) error {
	if res.OK() {
		switch {
		case res.Status != "":
			fmt.Fprintln(a.out, res.Status)
		case success != "":
			fmt.Fprintln(a.out, success)
		}
		return nil
	}
	if res.Message != "" {
		fmt.Fprintln(a.out, res.Message)
	}
	for _, field := range res.Errors.Fields() {
		for _, msg := range res.Errors.Get(field) {
			fmt.Fprintf(a.out, "  %s: %s\n", field, msg)
		}
	}
	return errRejected
}

func printUser(w io.Writer, user authsession.User) {
	keys := make([]string, 0, len(user))
	for k := range user {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, user[k])
	}
}
