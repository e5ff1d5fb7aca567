package service

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// fcmMaxTokens is the FCM limit of tokens per multicast request.
const fcmMaxTokens = 500

// FCMGateway sends push notifications through Firebase Cloud Messaging.
type FCMGateway struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMGateway creates a messaging client from service account fields.
// The private key in .env has literal "\n" sequences which are turned into newlines.
func NewFCMGateway(ctx context.Context, projectID, clientEmail, privateKey string, logger *zap.Logger) (*FCMGateway, error) {
	privateKey = strings.ReplaceAll(privateKey, "\\n", "\n")

	credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, projectID, privateKey, clientEmail)

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsJSON([]byte(credsJSON)))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	logger.Info("[FCM] Initialized", zap.String("project_id", projectID))
	return &FCMGateway{client: client, logger: logger}, nil
}

// SendMulticast sends msg to all tokens, splitting into batches of 500.
func (g *FCMGateway) SendMulticast(ctx context.Context, msg *PushMessage) (*PushResponse, error) {
	out := &PushResponse{Results: make([]PushResult, 0, len(msg.Tokens))}

	for start := 0; start < len(msg.Tokens); start += fcmMaxTokens {
		end := min(start+fcmMaxTokens, len(msg.Tokens))

		resp, err := g.client.SendEachForMulticast(ctx, buildFCMMessage(msg, msg.Tokens[start:end]))
		if err != nil {
			return nil, fmt.Errorf("send multicast: %w", err)
		}

		for i, r := range resp.Responses {
			if r.Success {
				out.Results = append(out.Results, PushResult{Success: true})
				continue
			}
			g.logger.Warn("[FCM] Token failed", zap.Int("index", start+i), zap.Error(r.Error))
			out.Results = append(out.Results, PushResult{Retryable: fcmRetryable(r.Error), Err: r.Error})
		}
		out.SuccessCount += resp.SuccessCount
		out.FailureCount += resp.FailureCount
	}

	g.logger.Info("[FCM] Multicast sent",
		zap.Int("tokens", len(msg.Tokens)),
		zap.Int("success", out.SuccessCount),
		zap.Int("failure", out.FailureCount),
	)
	return out, nil
}

func buildFCMMessage(msg *PushMessage, tokens []string) *messaging.MulticastMessage {
	m := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.ImageURL,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:    msg.Sound,
				ImageURL: msg.ImageURL,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: msg.Sound},
			},
		},
	}
	if msg.ImageURL != "" {
		m.APNS.FCMOptions = &messaging.APNSFCMOptions{ImageURL: msg.ImageURL}
	}
	return m
}

func fcmRetryable(err error) bool {
	return messaging.IsUnavailable(err) || messaging.IsInternal(err) || messaging.IsQuotaExceeded(err)
}
