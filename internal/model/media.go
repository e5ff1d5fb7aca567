package model

import "errors"

const (
	MaxImageSizeBytes = 4 * 1024 * 1024 // 4MB
	ImageMaxWidth     = 512
	ImageMaxHeight    = 512
	ImageExt          = ".jpg"
	ImageCacheControl = "public, max-age=31536000" // 1 year

	MaxAudioSizeBytes = 4 * 1024 * 1024
)

// Object key prefixes inside the bucket.
const (
	FolderUsers    = "users"
	FolderGlasses  = "glasses"
	FolderContacts = "contacts"
)

// Supported image content types for upload validation
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

var allowedImageTypes = map[string]struct{}{
	ContentTypeJPEG: {},
	ContentTypePNG:  {},
}

var allowedAudioExts = map[string]struct{}{
	".mp3": {},
	".wav": {},
	".m4a": {},
}

// Error codes for HTTP responses
const (
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidImageType = "INVALID_IMAGE_TYPE"
	CodeInvalidAudio     = "INVALID_AUDIO"
)

// Domain errors for media operations
var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrInvalidImageType = errors.New("invalid image type")
	ErrInvalidAudioType = errors.New("unsupported audio type")
	ErrEmptyAudio       = errors.New("audio file is empty")
)

// UploadResult represents the uploaded object location.
// Key is kept so the object can be removed when replaced.
type UploadResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// IsAllowedImageType reports if the provided content type is supported
func IsAllowedImageType(contentType string) bool {
	_, ok := allowedImageTypes[contentType]
	return ok
}

// IsAllowedAudioExt reports whether ext (with leading dot, lower case) is accepted for transcription.
func IsAllowedAudioExt(ext string) bool {
	_, ok := allowedAudioExts[ext]
	return ok
}
