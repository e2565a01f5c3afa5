// validation.go - Input validation and sanitization helpers
package server

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// createRequest is the body of PUT /api/transfers.
type createRequest struct {
	Filename    string `json:"filename" validate:"required,max=1024"`
	ContentType string `json:"contentType" validate:"required,max=255"`
}

// normalize validates r and returns the cleaned filename and media type.
func (r createRequest) normalize() (filename, contentType string, err error) {
	if err := validate.Struct(r); err != nil {
		return "", "", err
	}
	mediaType, params, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return "", "", fmt.Errorf("contentType: %w", err)
	}
	if typ, sub, ok := strings.Cut(mediaType, "/"); !ok || typ == "" || sub == "" {
		return "", "", fmt.Errorf("contentType: %q is not of the form type/subtype", mediaType)
	}
	return SanitizeFilename(r.Filename), mime.FormatMediaType(mediaType, params), nil
}

// SanitizeFilename removes potentially dangerous characters from filenames
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, filename)

	filename = strings.Trim(filename, " .")

	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		if len(ext) > 32 {
			ext = ""
		}
		filename = strings.ToValidUTF8(filename[:255-len(ext)], "") + ext
	}

	if filename == "" {
		filename = "unnamed"
	}
	return filename
}
