package analysis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MrWong99/monitome/pkg/provider/llm"
)

const defaultMediaType = "image/png"

// MediaTypeForPath returns the image media type implied by path's extension.
// Unknown extensions are assumed to be PNG.
func MediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return defaultMediaType
	}
}

// DecodeImage decodes a base64 image payload. A "data:<type>;base64," prefix
// is honoured; bare payloads are treated as PNG. Padded and unpadded base64
// are both accepted.
func DecodeImage(payload string) (llm.Image, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return llm.Image{}, errors.New("image_base64 is required")
	}
	mediaType := defaultMediaType
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return llm.Image{}, errors.New("image_base64: unsupported data URL")
		}
		if mt := strings.TrimSuffix(header, ";base64"); mt != "" {
			mediaType = mt
		}
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(payload); rawErr != nil {
			return llm.Image{}, fmt.Errorf("image_base64: %w", err)
		}
	}
	if len(data) == 0 {
		return llm.Image{}, errors.New("image_base64 decodes to an empty image")
	}
	return llm.Image{MediaType: mediaType, Data: data}, nil
}
