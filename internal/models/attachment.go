package models

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Attachment is inline binary data carried by a message (image, audio or
// arbitrary file). Content is a data URL.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

// IsImage reports whether the attachment can be sent as an image part.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// NewAttachment encodes raw bytes as a data URL attachment.
func NewAttachment(name, mimeType string, data []byte) Attachment {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return Attachment{
		Name:     name,
		MimeType: mimeType,
		Content:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
}

// AttachmentFromFile reads a file from disk into an attachment.
func AttachmentFromFile(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return NewAttachment(filepath.Base(path), mimeType, data), nil
}

// DecodeDataURL splits a data URL into its mime type and payload.
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return mimeType, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return mimeType, data, nil
}
