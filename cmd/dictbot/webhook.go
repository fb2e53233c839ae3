package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
)

func newWebhookCommand() *cobra.Command {
	webhookCommand := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}

	var dropPending bool
	deleteCommand := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			botAPI, _, err := newBotAPI()
			if err != nil {
				return err
			}
			if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
				return fmt.Errorf("botAPI.Request(deleteWebhook) > %w", err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "Webhook deleted")
			return nil
		},
	}
	deleteCommand.Flags().BoolVar(&dropPending, "drop-pending", false, "Drop updates Telegram has queued")

	webhookCommand.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Register the configured webhook URL",
			RunE: func(cmd *cobra.Command, args []string) error {
				botAPI, endpoint, err := newBotAPI()
				if err != nil {
					return err
				}
				wh, err := tgbotapi.NewWebhook(endpoint)
				if err != nil {
					return fmt.Errorf("tgbotapi.NewWebhook() > %w", err)
				}
				if _, err := botAPI.Request(wh); err != nil {
					return fmt.Errorf("botAPI.Request(setWebhook) > %w", err)
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", endpoint)
				return nil
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show the webhook Telegram has registered",
			RunE: func(cmd *cobra.Command, args []string) error {
				botAPI, endpoint, err := newBotAPI()
				if err != nil {
					return err
				}
				info, err := botAPI.GetWebhookInfo()
				if err != nil {
					return fmt.Errorf("botAPI.GetWebhookInfo() > %w", err)
				}
				printWebhookInfo(cmd.OutOrStdout(), endpoint, info)
				return nil
			},
		},
		deleteCommand,
	)
	return webhookCommand
}

func newBotAPI() (*tgbotapi.BotAPI, string, error) {
	cfg, err := loadConfig("Telegram")
	if err != nil {
		return nil, "", err
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, "", fmt.Errorf("tgbotapi.NewBotAPI() > %w", err)
	}
	return botAPI, cfg.Telegram.WebhookEndpoint(), nil
}

func printWebhookInfo(w io.Writer, configured string, info tgbotapi.WebhookInfo) {
	fmt.Fprintf(w, "URL:              %s\n", info.URL)
	fmt.Fprintf(w, "Pending updates:  %d\n", info.PendingUpdateCount)
	if info.LastErrorMessage != "" {
		color.New(color.FgRed).Fprintf(w, "Last error:       %s\n", info.LastErrorMessage)
	}
	if info.URL != configured {
		color.New(color.FgYellow).Fprintf(w, "Configured URL %s is not registered, run `dictbot webhook set`\n", configured)
	}
}
