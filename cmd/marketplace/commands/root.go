// Package commands implements the marketplace command line.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/marketplace/internal/app"
	"github.com/R3E-Network/marketplace/internal/config"
)

var (
	configPath string
	envFile    string
	asJSON     bool
	timeout    time.Duration

	appCtx *app.Application
	// appOptions lets tests replace parts of the wiring.
	appOptions app.Options
)

// Execute runs the root command.
func Execute() error {
	return run(newRootCmd())
}

// run executes root and stops the application it built, whether or not the
// command succeeded.
func run(root *cobra.Command) error {
	err := root.Execute()
	if appCtx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		stopErr := appCtx.Stop(ctx)
		cancel()
		appCtx = nil
		if err == nil {
			err = stopErr
		}
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketplace",
		Short:         "Browse the decentralized marketplace contract",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Options{Path: configPath, EnvFile: envFile})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appCtx, err = app.New(cfg, appOptions)
			if err != nil {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default "+config.DefaultConfigPath+" when present)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default .env when present)")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print views as JSON")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the node")

	root.AddCommand(serveCmd(), connectCmd(), sessionCmd(), productsCmd(), productCmd(), profileCmd())
	return root
}

// start resumes the session and runs the background services for a one-shot
// command.
func start(cmd *cobra.Command) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	if err := appCtx.Start(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, cancel, nil
}

// texter is implemented by every view.
type texter interface {
	Text() string
}

func render(w io.Writer, v texter) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := io.WriteString(w, v.Text())
	return err
}
