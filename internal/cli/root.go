// Package cli implements the larderctl admin commands. They talk to the
// backing store directly, so they work while the server is down.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentoven/larder/internal/config"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/pkg/server"
)

var (
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "larderctl",
	Short: "Administer the larder kitchen bot",
	Long:  "Inspect and manage learned utterances, saved pipelines and the Telegram webhook. Configuration comes from the same environment as the server.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

func openStore(ctx context.Context) (store.Store, *config.Config, error) {
	cfg := config.Load()
	s, err := server.OpenStore(ctx, cfg.Database)
	return s, cfg, err
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// output prints v as indented JSON, or through text when the text format
// is selected.
func output(w io.Writer, v any, text func(io.Writer)) {
	if formatFlag == "json" || text == nil {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(w, string(b))
		return
	}
	text(w)
}
