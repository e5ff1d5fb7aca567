package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"roaia/internal/httputil"
	"roaia/internal/model"
)

type assistantService interface {
	Transcribe(ctx context.Context, filename string, size int64, r io.Reader) (string, error)
	Ask(ctx context.Context, question string) (string, error)
}

// AssistantHandler serves the voice assistant used by the glasses.
type AssistantHandler struct {
	audio  assistantService
	logger *zap.Logger
}

func NewAssistantHandler(audio assistantService, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{audio: audio, logger: logger}
}

// ProcessAudio transcribes the multipart "audio" file.
// POST /api/service/process-audio
func (h *AssistantHandler) ProcessAudio(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	file, header, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidAudio, "audio file is required")
		return
	}
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid audio upload")
		return
	}
	defer file.Close()

	text, err := h.audio.Transcribe(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		writeServiceError(w, h.logger, "ProcessAudio", err, "Failed to transcribe audio")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, model.TranscriptionResponse{Text: text})
}

// AskChat answers a question.
// POST /api/service/ask-chat
func (h *AssistantHandler) AskChat(w http.ResponseWriter, r *http.Request) {
	var req model.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	answer, err := h.audio.Ask(r.Context(), req.Question)
	if err != nil {
		writeServiceError(w, h.logger, "AskChat", err, "Failed to answer question")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, model.AskResponse{Answer: answer})
}
