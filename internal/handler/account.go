package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"roaia/internal/httputil"
	"roaia/internal/model"
	"roaia/internal/transport/http/middleware"
)

type accountService interface {
	GenerateGlassesID(ctx context.Context) (string, error)
	GetGlassesInfo(ctx context.Context, glassesID string) (*model.Glasses, error)
	ModifyGlassesInfo(ctx context.Context, glassesID string, req *model.ModifyGlassesRequest) (*model.Glasses, error)
	SetSubscription(ctx context.Context, glassesID string, req *model.SetSubscriptionRequest) (*model.Glasses, error)
	AddContact(ctx context.Context, glassesID string, req *model.ContactRequest) (*model.Contact, error)
	ModifyContact(ctx context.Context, glassesID string, contactID int64, req *model.ContactRequest) (*model.Contact, error)
	ListContacts(ctx context.Context, glassesID string) ([]model.Contact, error)
	ListContactImages(ctx context.Context, glassesID string) ([]model.ContactImage, error)
	DeleteContact(ctx context.Context, glassesID string, contactID int64) error
}

// AccountHandler serves the wearer profile and its contacts.
type AccountHandler struct {
	accounts accountService
	media    imageStore
	logger   *zap.Logger
}

func NewAccountHandler(accounts accountService, media imageStore, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, media: media, logger: logger}
}

// GenerateGlassesID provisions a new wearer profile.
// POST /api/glasses
func (h *AccountHandler) GenerateGlassesID(w http.ResponseWriter, r *http.Request) {
	id, err := h.accounts.GenerateGlassesID(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "GenerateGlassesID", err, "Failed to generate glasses id")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"glasses_id": id})
}

// GetGlasses handles GET /api/glasses/{id}
func (h *AccountHandler) GetGlasses(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}

	glasses, err := h.accounts.GetGlassesInfo(r.Context(), glassesID)
	if err != nil {
		writeServiceError(w, h.logger, "GetGlasses", err, "Failed to get glasses")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, glasses)
}

// ModifyGlasses updates the wearer profile; multipart with an optional image.
// Repeated "diseases" fields replace the disease set.
// PUT /api/glasses/{id}
func (h *AccountHandler) ModifyGlasses(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}
	if !parseMultipart(w, r) {
		return
	}

	age, ok := optionalIntField(w, r, "age")
	if !ok {
		return
	}
	req := model.ModifyGlassesRequest{
		FullName: optionalFormValue(r, "full_name"),
		Age:      age,
		Gender:   optionalFormValue(r, "gender"),
	}
	if values, present := r.MultipartForm.Value["diseases"]; present {
		req.Diseases = make([]string, 0, len(values))
		for _, v := range values {
			for _, d := range strings.Split(v, ",") {
				if d = strings.TrimSpace(d); d != "" {
					req.Diseases = append(req.Diseases, d)
				}
			}
		}
	}

	upload, ok := uploadFormImage(w, r, h.media, h.logger, model.FolderGlasses)
	if !ok {
		return
	}
	if upload != nil {
		req.ImageURL = &upload.URL
		req.ImageKey = &upload.Key
	}

	glasses, err := h.accounts.ModifyGlassesInfo(r.Context(), glassesID, &req)
	if err != nil {
		discardUpload(r.Context(), h.media, h.logger, upload)
		writeServiceError(w, h.logger, "ModifyGlasses", err, "Failed to modify glasses")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, glasses)
}

// SetSubscription changes the contact quota and plan expiry (admin only).
// PUT /api/glasses/{id}/subscription
func (h *AccountHandler) SetSubscription(w http.ResponseWriter, r *http.Request) {
	var req model.SetSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	glasses, err := h.accounts.SetSubscription(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, h.logger, "SetSubscription", err, "Failed to set subscription")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, glasses)
}

// AddContact handles POST /api/glasses/{id}/contacts (multipart)
func (h *AccountHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}
	req, ok := h.contactRequest(w, r)
	if !ok {
		return
	}

	upload, ok := uploadFormImage(w, r, h.media, h.logger, model.FolderContacts)
	if !ok {
		return
	}
	if upload != nil {
		req.ImageURL = &upload.URL
		req.ImageKey = &upload.Key
	}

	contact, err := h.accounts.AddContact(r.Context(), glassesID, req)
	if err != nil {
		discardUpload(r.Context(), h.media, h.logger, upload)
		writeServiceError(w, h.logger, "AddContact", err, "Failed to add contact")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, contact)
}

// ModifyContact handles PUT /api/glasses/{id}/contacts/{contactId} (multipart)
func (h *AccountHandler) ModifyContact(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}
	contactID, ok := int64Param(w, r, "contactId")
	if !ok {
		return
	}
	req, ok := h.contactRequest(w, r)
	if !ok {
		return
	}

	upload, ok := uploadFormImage(w, r, h.media, h.logger, model.FolderContacts)
	if !ok {
		return
	}
	if upload != nil {
		req.ImageURL = &upload.URL
		req.ImageKey = &upload.Key
	}

	contact, err := h.accounts.ModifyContact(r.Context(), glassesID, contactID, req)
	if err != nil {
		discardUpload(r.Context(), h.media, h.logger, upload)
		writeServiceError(w, h.logger, "ModifyContact", err, "Failed to modify contact")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, contact)
}

// ListContacts handles GET /api/glasses/{id}/contacts
func (h *AccountHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}

	contacts, err := h.accounts.ListContacts(r.Context(), glassesID)
	if err != nil {
		writeServiceError(w, h.logger, "ListContacts", err, "Failed to list contacts")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, contacts)
}

// ListContactImages is called by the glasses for face recognition.
// GET /api/glasses/{id}/contacts/images
func (h *AccountHandler) ListContactImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.accounts.ListContactImages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "ListContactImages", err, "Failed to list contact images")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, images)
}

// DeleteContact handles DELETE /api/glasses/{id}/contacts/{contactId}
func (h *AccountHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}
	contactID, ok := int64Param(w, r, "contactId")
	if !ok {
		return
	}

	if err := h.accounts.DeleteContact(r.Context(), glassesID, contactID); err != nil {
		writeServiceError(w, h.logger, "DeleteContact", err, "Failed to delete contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) contactRequest(w http.ResponseWriter, r *http.Request) (*model.ContactRequest, bool) {
	if !parseMultipart(w, r) {
		return nil, false
	}
	age, ok := optionalIntField(w, r, "age")
	if !ok {
		return nil, false
	}
	return &model.ContactRequest{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Age:         age,
		Relation:    optionalFormValue(r, "relation"),
		PhoneNumber: optionalFormValue(r, "phone_number"),
	}, true
}

// glassesParam reads {id} and checks the caller may act on it.
func glassesParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	glassesID := chi.URLParam(r, "id")
	if glassesID == "" {
		httputil.WriteBadRequest(w, "Glasses id is required")
		return "", false
	}
	if !middleware.CanAccessGlasses(r.Context(), glassesID) {
		httputil.WriteForbidden(w, "Not linked to these glasses")
		return "", false
	}
	return glassesID, true
}

func int64Param(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || v <= 0 {
		httputil.WriteBadRequest(w, "Invalid "+key)
		return 0, false
	}
	return v, true
}

func optionalIntField(w http.ResponseWriter, r *http.Request, key string) (*int, bool) {
	raw := optionalFormValue(r, key)
	if raw == nil || *raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(*raw)
	if err != nil {
		httputil.WriteBadRequest(w, key+" must be a number")
		return nil, false
	}
	return &v, true
}
