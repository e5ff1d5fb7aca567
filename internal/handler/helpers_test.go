package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"roaia/internal/httputil"
	"roaia/internal/model"
	"roaia/internal/transport/http/middleware"
)

type identity struct {
	userID    string
	glassesID string
	roles     []string
}

var (
	caretaker = identity{userID: "user-1", glassesID: "g-1", roles: []string{model.RoleUser}}
	admin     = identity{userID: "admin-1", roles: []string{model.RoleAdmin}}
)

func contextWith(ctx context.Context, id identity) context.Context {
	ctx = context.WithValue(ctx, middleware.UserIDKey, id.userID)
	ctx = context.WithValue(ctx, middleware.RolesKey, id.roles)
	return context.WithValue(ctx, middleware.GlassesIDKey, id.glassesID)
}

// serve runs req through a chi router so URL params resolve, with id as the caller.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request, id *identity) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id != nil {
				r = r.WithContext(contextWith(r.Context(), *id))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.MethodFunc(method, pattern, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, method, target string, fields map[string][]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "face.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

type fakeImageStore struct {
	uploads []string
	deleted []string
	err     error
}

func (f *fakeImageStore) UploadImage(ctx context.Context, file multipart.File, header *multipart.FileHeader, folder string) (*model.UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := folder + "/" + header.Filename
	f.uploads = append(f.uploads, key)
	return &model.UploadResult{Key: key, URL: "https://cdn.example.com/" + key}, nil
}

func (f *fakeImageStore) DeleteObject(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
