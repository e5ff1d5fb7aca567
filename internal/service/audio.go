package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"roaia/internal/model"
)

const assistantSystemPrompt = "You are Roaia, an assistant for visually impaired people. " +
	"Answer briefly and clearly so the answer can be read aloud."

type transcriptionResponse struct {
	Text string `json:"text"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// AudioConfig points the assistant at an OpenAI compatible API.
type AudioConfig struct {
	APIKey          string
	BaseURL         string
	TranscribeModel string
	ChatModel       string
}

// AudioService transcribes voice notes and answers questions.
type AudioService struct {
	client *resty.Client
	cfg    AudioConfig
	logger *zap.Logger
}

func NewAudioService(cfg AudioConfig, logger *zap.Logger) *AudioService {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(60*time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &AudioService{client: client, cfg: cfg, logger: logger}
}

// Transcribe converts an uploaded audio file to text.
func (s *AudioService) Transcribe(ctx context.Context, filename string, size int64, r io.Reader) (string, error) {
	if s.cfg.APIKey == "" {
		return "", model.ErrAssistantUnavailable
	}
	if size == 0 {
		return "", model.ErrEmptyAudio
	}
	if size > model.MaxAudioSizeBytes {
		return "", model.ErrFileTooLarge
	}
	if !model.IsAllowedAudioExt(strings.ToLower(filepath.Ext(filename))) {
		return "", model.ErrInvalidAudioType
	}

	data, err := io.ReadAll(io.LimitReader(r, model.MaxAudioSizeBytes+1))
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return "", model.ErrEmptyAudio
	}
	if len(data) > model.MaxAudioSizeBytes {
		return "", model.ErrFileTooLarge
	}

	var result transcriptionResponse
	var apiErr apiError
	resp, err := s.client.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(filename), bytes.NewReader(data)).
		SetFormData(map[string]string{"model": s.cfg.TranscribeModel}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("[Audio] Transcribe FAILED",
			zap.Int("status", resp.StatusCode()),
			zap.String("message", apiErr.Error.Message),
		)
		return "", fmt.Errorf("transcription api: status=%d %s", resp.StatusCode(), apiErr.Error.Message)
	}

	s.logger.Info("[Audio] Transcribe OK", zap.String("file", filename), zap.Int("bytes", len(data)))
	return strings.TrimSpace(result.Text), nil
}

// Ask answers a free-form question with the first completion choice.
func (s *AudioService) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", model.ErrQuestionRequired
	}
	if s.cfg.APIKey == "" {
		return "", model.ErrAssistantUnavailable
	}

	var result chatResponse
	var apiErr apiError
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(chatRequest{
			Model: s.cfg.ChatModel,
			Messages: []chatMessage{
				{Role: "system", Content: assistantSystemPrompt},
				{Role: "user", Content: question},
			},
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("[Audio] Ask FAILED",
			zap.Int("status", resp.StatusCode()),
			zap.String("message", apiErr.Error.Message),
		)
		return "", fmt.Errorf("chat api: status=%d %s", resp.StatusCode(), apiErr.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
