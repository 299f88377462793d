package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentoven/larder/internal/config"
	"github.com/agentoven/larder/internal/telegram"
)

func init() {
	webhookCmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}

	set := &cobra.Command{
		Use:   "set <public-base-url>",
		Short: "Register <public-base-url>/telegram/webhook with the configured secret",
		Args:  cobra.ExactArgs(1),
		Run:   runWebhookSet,
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Show the registered webhook and its delivery backlog",
		Run:   runWebhookInfo,
	}

	webhookCmd.AddCommand(set, info)
	RootCmd.AddCommand(webhookCmd)
}

func openBot() (*telegram.Bot, *config.Config) {
	cfg := config.Load()
	if cfg.Telegram.BotToken == "" {
		exitErr("telegram", fmt.Errorf("TELEGRAM_BOT_TOKEN is not set"))
	}
	b, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint)
	if err != nil {
		exitErr("telegram", err)
	}
	return b, cfg
}

func runWebhookSet(cmd *cobra.Command, args []string) {
	b, cfg := openBot()
	url := args[0] + "/telegram/webhook"
	if err := b.SetWebhook(url, cfg.Telegram.WebhookSecret); err != nil {
		exitErr("set webhook", err)
	}
	output(cmd.OutOrStdout(), map[string]string{"url": url}, func(w io.Writer) {
		fmt.Fprintf(w, "Webhook set to %s\n", url)
	})
}

func runWebhookInfo(cmd *cobra.Command, args []string) {
	b, _ := openBot()
	url, pending, lastErr, err := b.WebhookInfo()
	if err != nil {
		exitErr("webhook info", err)
	}
	output(cmd.OutOrStdout(), map[string]any{"url": url, "pending": pending, "last_error": lastErr}, func(w io.Writer) {
		fmt.Fprintf(w, "URL: %s\nPending updates: %d\n", url, pending)
		if lastErr != "" {
			fmt.Fprintf(w, "Last error: %s\n", lastErr)
		}
	})
}
