package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/cmd/storyblok-proxy/apiserver"
	"github.com/openkcm/storyblok-proxy/cmd/storyblok-proxy/housekeeper"
	"github.com/openkcm/storyblok-proxy/cmd/storyblok-proxy/migrate"
	"github.com/openkcm/storyblok-proxy/cmd/storyblok-proxy/stories"
)

var (
	// BuildInfo will be set by the build system
	BuildInfo = "{}"

	gracefulShutdown time.Duration
)

// oneShot marks commands that finish on their own and skip the graceful
// shutdown delay.
const oneShot = "one-shot"

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Storyblok proxy version",
	Annotations: map[string]string{oneShot: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		value, err := utils.ExtractFromComplexValue(BuildInfo)
		if err != nil {
			return err
		}

		slog.InfoContext(cmd.Context(), value)

		return nil
	},
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storyblok-proxy",
		Short: "Storyblok proxy",
		Long:  "Storyblok proxy, holding Storyblok OAuth tokens in a browser session and forwarding management API calls.",
	}

	cmd.PersistentFlags().DurationVar(&gracefulShutdown, "graceful-shutdown", 1*time.Second, "graceful shutdown")

	cmd.AddCommand(
		versionCmd,
		apiserver.Cmd(BuildInfo),
		migrate.Cmd(BuildInfo),
		housekeeper.Cmd(BuildInfo),
		stories.Cmd(oneShot),
	)

	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancelOnSignal()

	executed, err := rootCmd().ExecuteContextC(ctx)
	if err != nil {
		slogctx.Error(ctx, "failed to start the application", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return err
	}

	if _, ok := executed.Annotations[oneShot]; !ok {
		_, _ = fmt.Fprintf(os.Stderr, "Graceful shutdown in %s\n", gracefulShutdown)
		time.Sleep(gracefulShutdown)
	}

	return nil
}

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
