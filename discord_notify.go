package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	discordQueueDepth  = 32
	discordSendTimeout = 15 * time.Second
	discordUsername    = "kaspaBridge"
)

// discordNotifier posts found-block messages to a Discord webhook. Sends run
// on one goroutine so a slow Discord never delays share handling.
type discordNotifier struct {
	dg        *discordgo.Session
	webhookID string
	token     string
	queue     chan string
}

// parseDiscordWebhookURL extracts id and token from
// https://discord.com/api/webhooks/<id>/<token>.
func parseDiscordWebhookURL(raw string) (id, token string, err error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: discord_webhook_url: %v", errConfigInvalid, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%w: discord_webhook_url %q is not a webhook url", errConfigInvalid, raw)
}

// newDiscordNotifier returns nil when no webhook is configured.
func newDiscordNotifier(webhookURL string) (*discordNotifier, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, nil
	}
	id, token, err := parseDiscordWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution is authenticated by the token in the path.
	dg, err := discordgo.New("")
	if err != nil {
		return nil, err
	}
	dg.Client.Timeout = discordSendTimeout
	return &discordNotifier{
		dg:        dg,
		webhookID: id,
		token:     token,
		queue:     make(chan string, discordQueueDepth),
	}, nil
}

func (n *discordNotifier) enabled() bool {
	return n != nil && n.dg != nil
}

func (n *discordNotifier) start(ctx context.Context) {
	if !n.enabled() {
		return
	}
	go n.loop(ctx)
}

func (n *discordNotifier) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if _, err := n.dg.WebhookExecute(n.webhookID, n.token, false, &discordgo.WebhookParams{
				Content:  msg,
				Username: discordUsername,
			}); err != nil {
				logger.Warn("discord webhook send", "component", "discord", "error", err)
			}
		}
	}
}

func (n *discordNotifier) enqueue(msg string) {
	if !n.enabled() {
		return
	}
	select {
	case n.queue <- msg:
	default:
		logger.Warn("discord queue full; dropping notice", "component", "discord")
	}
}

// NotifyBlock announces a found block with its submission outcome.
func (n *discordNotifier) NotifyBlock(rec foundBlockRecord) {
	if !n.enabled() {
		return
	}
	n.enqueue(formatBlockNotice(rec))
}

func formatBlockNotice(rec foundBlockRecord) string {
	var b strings.Builder
	if rec.Status == blockStatusSubmitted {
		b.WriteString(":tada: Block found")
	} else {
		b.WriteString(":warning: Block found but submission failed")
	}
	fmt.Fprintf(&b, "\nhash: `%s`\nworker: `%s`\ninstance: %d  daa score: %d", rec.Hash, rec.Worker, rec.Instance, rec.DAAScore)
	if rec.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", rec.Error)
	}
	return b.String()
}
