package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	authrepo "raid-mail-agent/internal/auth/repository"
	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/fcm"
)

// PushSender delivers a push notification and reports stale tokens
type PushSender interface {
	SendToDevices(ctx context.Context, tokens []string, n fcm.Notification) ([]string, error)
}

// FCMAlerter pushes failed-thread alerts to operator devices. Tokens come
// from registered devices plus a fixed configured list.
type FCMAlerter struct {
	sender       PushSender
	devices      authrepo.DeviceTokenRepository
	staticTokens []string
	timeout      time.Duration
}

func NewFCMAlerter(sender PushSender, devices authrepo.DeviceTokenRepository, staticTokens []string) *FCMAlerter {
	return &FCMAlerter{sender: sender, devices: devices, staticTokens: staticTokens, timeout: 30 * time.Second}
}

// ThreadFailed sends the alert in the background
func (a *FCMAlerter) ThreadFailed(ctx context.Context, wf *domain.Workflow) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.Notify(sendCtx, wf); err != nil {
			log.Printf("[FCM] Failed to alert operators about thread %s: %v", wf.ThreadID, err)
		}
	}()
}

// Notify sends the alert and drops device tokens FCM no longer accepts
func (a *FCMAlerter) Notify(ctx context.Context, wf *domain.Workflow) error {
	tokens, err := a.tokens(ctx)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		log.Printf("[FCM] No operator devices, skipping alert for thread %s", wf.ThreadID)
		return nil
	}

	body := wf.LastError
	if len(body) > 180 {
		body = body[:177] + "..."
	}
	stale, err := a.sender.SendToDevices(ctx, tokens, fcm.Notification{
		Title: fmt.Sprintf("Thread with %s failed", wf.UserEmail),
		Body:  body,
		Data: map[string]string{
			"type":        "thread_failed",
			"thread_id":   wf.ThreadID,
			"user_email":  wf.UserEmail,
			"failed_from": string(wf.FailedFrom),
			"step":        fmt.Sprintf("%d", wf.Step),
		},
	})
	if err != nil {
		return err
	}

	if len(stale) > 0 && a.devices != nil {
		log.Printf("[FCM] Cleaning up %d failed tokens", len(stale))
		for _, token := range stale {
			if err := a.devices.DeleteToken(ctx, token); err != nil {
				log.Printf("[FCM] Failed to delete stale token: %v", err)
			}
		}
	}
	return nil
}

func (a *FCMAlerter) tokens(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var tokens []string
	add := func(list []string) {
		for _, t := range list {
			if t != "" && !seen[t] {
				seen[t] = true
				tokens = append(tokens, t)
			}
		}
	}
	add(a.staticTokens)
	if a.devices != nil {
		registered, err := a.devices.ListTokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing operator devices: %w", err)
		}
		add(registered)
	}
	return tokens, nil
}
