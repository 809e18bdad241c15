package llm

import (
	"encoding/base64"
	"net/http"
)

// DataURL encodes an image for inline transport in a chat message.
func DataURL(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
