package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultExpoPushURL is Expo's public push endpoint.
const DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

// expoPushMessage is the payload for Expo's Push API.
type expoPushMessage struct {
	To       []string          `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type expoPushResponse struct {
	Data []expoPushTicket `json:"data"`
}

type expoPushTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"` // "DeviceNotRegistered", "MessageRateExceeded", ...
	} `json:"details,omitempty"`
}

var errMalformedExpoToken = errors.New("not an expo push token")

// ExpoGateway sends push notifications via Expo's Push API.
type ExpoGateway struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

func NewExpoGateway(url string, logger *zap.Logger) *ExpoGateway {
	if url == "" {
		url = DefaultExpoPushURL
	}
	client := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ExpoGateway{client: client, url: url, logger: logger}
}

func isExpoToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

// SendMulticast posts one message addressed to every well-formed token.
// Malformed tokens are reported as permanent failures without being sent.
func (g *ExpoGateway) SendMulticast(ctx context.Context, msg *PushMessage) (*PushResponse, error) {
	results := make([]PushResult, len(msg.Tokens))
	sendIdx := make([]int, 0, len(msg.Tokens))
	valid := make([]string, 0, len(msg.Tokens))
	for i, token := range msg.Tokens {
		if isExpoToken(token) {
			sendIdx = append(sendIdx, i)
			valid = append(valid, token)
			continue
		}
		results[i] = PushResult{Err: errMalformedExpoToken}
	}

	if len(valid) > 0 {
		sound := msg.Sound
		if sound == "" {
			sound = "default"
		}
		payload := expoPushMessage{
			To:       valid,
			Title:    msg.Title,
			Body:     msg.Body,
			Data:     msg.Data,
			Sound:    sound,
			Priority: "high",
		}

		var parsed expoPushResponse
		resp, err := g.client.R().
			SetContext(ctx).
			SetBody(payload).
			SetResult(&parsed).
			Post(g.url)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("expo api error: status=%d body=%s", resp.StatusCode(), resp.String())
		}
		if len(parsed.Data) != len(valid) {
			return nil, fmt.Errorf("expo api returned %d tickets for %d tokens", len(parsed.Data), len(valid))
		}

		for j, ticket := range parsed.Data {
			i := sendIdx[j]
			if ticket.Status == "ok" {
				results[i] = PushResult{Success: true}
				continue
			}
			g.logger.Warn("[ExpoPush] Token failed",
				zap.Int("index", i),
				zap.String("message", ticket.Message),
				zap.String("error", ticket.Details.Error),
			)
			results[i] = PushResult{
				Retryable: ticket.Details.Error != "DeviceNotRegistered",
				Err:       fmt.Errorf("expo: %s", ticket.Details.Error),
			}
		}
	}

	out := &PushResponse{Results: results}
	for _, r := range results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}

	g.logger.Info("[ExpoPush] Multicast sent",
		zap.Int("tokens", len(msg.Tokens)),
		zap.Int("success", out.SuccessCount),
		zap.Int("failure", out.FailureCount),
	)
	return out, nil
}
