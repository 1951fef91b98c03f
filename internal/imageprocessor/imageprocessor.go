// Package imageprocessor holds the uploaded image payload and the encodings the
// inference call and the preview need. It never inspects pixel data: the
// declared MIME type is the only thing validated.
package imageprocessor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// DefaultMIMEType is sent when an image carries no declared type.
const DefaultMIMEType = "image/jpeg"

var supportedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
	"image/bmp":  {},
}

var (
	// ErrNoImage is returned when a selection carries no file.
	ErrNoImage = errors.New("no image file provided")
	// ErrUnsupportedType is returned for declared MIME types outside the allow list.
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Image is a single uploaded file held for one session.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// New builds an Image with a normalized MIME type.
func New(name, mimeType string, data []byte) *Image {
	return &Image{Name: name, MIMEType: NormalizeMIMEType(mimeType), Data: data}
}

// Size reports the payload length in bytes.
func (i *Image) Size() int64 {
	if i == nil {
		return 0
	}
	return int64(len(i.Data))
}

// SizeLabel renders the size the way the upload panel shows it, e.g. "12.3 KB".
func (i *Image) SizeLabel() string {
	return fmt.Sprintf("%.1f KB", float64(i.Size())/1024)
}

// Base64 returns the standard base64 encoding of the payload without any data URL prefix.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns a data URL suitable for an <img src>.
func (i *Image) DataURL() string {
	mimeType := i.MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return "data:" + mimeType + ";base64," + i.Base64()
}

// NormalizeMIMEType lowercases the media type and drops any parameters.
func NormalizeMIMEType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return mediaType
	}
	return strings.ToLower(raw)
}

// IsSupported reports whether the declared MIME type is accepted.
func IsSupported(mimeType string) bool {
	_, ok := supportedMIMETypes[NormalizeMIMEType(mimeType)]
	return ok
}

// Validate checks that img is present and declares a supported MIME type.
func Validate(img *Image) error {
	if img == nil {
		return ErrNoImage
	}
	if !IsSupported(img.MIMEType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, img.MIMEType)
	}
	return nil
}
