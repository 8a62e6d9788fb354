package llm

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// ImageMIME returns declared when it is an image type, otherwise sniffs b.
func ImageMIME(b []byte, declared string) string {
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	mt := http.DetectContentType(b)
	if strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/jpeg"
}

// DataURL encodes image bytes for inline transport to a vision model.
func DataURL(b []byte, mimeType string) string {
	return "data:" + ImageMIME(b, mimeType) + ";base64," + base64.StdEncoding.EncodeToString(b)
}
