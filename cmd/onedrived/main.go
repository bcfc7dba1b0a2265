package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/m-rots/onedrived"
	"github.com/m-rots/onedrived/cmd/onedrived/store"
	"github.com/m-rots/onedrived/internal/config"
	"github.com/m-rots/onedrived/internal/logging"
	"github.com/m-rots/onedrived/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	colourReset  string = "\033[0m"
	colourRed    string = "\033[1;31m"
	colourGreen  string = "\033[1;32m"
	colourYellow string = "\033[1;33m"
)

const (
	authURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	tokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

var scopes = []string{"Files.ReadWrite.All", "offline_access"}

// app holds everything a command needs. It is set up before any
// command runs and torn down afterwards.
type app struct {
	configPath  string
	metricsFile string

	config   *config.Config
	logger   *zap.Logger
	store    store.Store
	root     *onedrived.Root
	registry *onedrived.DriveRegistry
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
}

func main() {
	if err := new(app).execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%serror%s %v\n", colourRed, colourReset, err)
		os.Exit(1)
	}
}

// execute runs the command line and tears down whatever was set up,
// whether the command succeeded or not.
func (a *app) execute(ctx context.Context, args []string) error {
	cmd := a.command()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if teardownErr := a.teardown(); err == nil {
		err = teardownErr
	}

	return err
}

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "onedrived",
		Short:         "Synchronise a local directory with a OneDrive drive",
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (default "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(
		a.drivesCommand(),
		a.registerCommand(),
		a.unregisterCommand(),
		a.syncCommand(),
		a.uploadCommand(),
		a.downloadCommand(),
		a.mkdirCommand(),
		a.touchCommand(),
	)

	return cmd
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}

	a.config = cfg
	a.logger = logger

	st, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return err
	}

	a.store = st

	oauth := &oauth2.Config{
		ClientID: cfg.Account.ClientID,
		Scopes:   scopes,
		Endpoint: oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
	}

	client := &http.Client{Timeout: cfg.HTTPTimeout}

	// the token source refreshes through the same client
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, client)
	tokens := oauth.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.Account.RefreshToken})

	account := onedrived.StaticAccount(cfg.Account.ID, onedrived.AccountType(cfg.Account.Type), onedrived.TokenSource(tokens))

	opts := []onedrived.Option{
		onedrived.WithClient(client),
		onedrived.WithDriveDefaults(cfg.DriveDefaults()),
		onedrived.WithLogger(logger),
	}

	reg := prometheus.NewRegistry()

	a.root = onedrived.New(account, opts...)
	a.registry = onedrived.NewDriveRegistry(st, onedrived.NewAccounts(account), logger, opts...)
	a.gatherer = reg
	a.metrics = metrics.New(reg)

	return nil
}

// teardown releases what setup acquired. It is safe to call when setup
// failed halfway or never ran.
func (a *app) teardown() error {
	if a.logger == nil {
		return nil
	}

	if a.metricsFile != "" && a.gatherer != nil {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.gatherer); err != nil {
			a.logger.Error("could not write metrics", zap.Error(err))
		}
	}

	a.logger.Sync()

	if a.store == nil {
		return nil
	}

	return a.store.Close()
}
