// Package proof normalizes customer-uploaded payment proofs before they are
// stored on an order.
package proof

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

const (
	defaultFileName = "default.jpg"
	uploadsPrefix   = "/api/uploads/"
)

var dataURLPattern = regexp.MustCompile(`^data:(image/[A-Za-z0-9.+-]+);base64,([A-Za-z0-9+/=\s]+)$`)

// Image is the decoded payload of a well-formed image data URL.
type Image struct {
	DeclaredType string
	DetectedType string
	Bytes        []byte
}

// Decode parses an image data URL. The declared media type must be image/* and
// the decoded bytes must sniff as an image as well.
func Decode(dataURL string) (Image, bool) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(dataURL))
	if m == nil {
		return Image{}, false
	}
	payload := strings.Join(strings.Fields(m[2]), "")
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(raw) == 0 {
		return Image{}, false
	}
	detected := mimetype.Detect(raw)
	if !strings.HasPrefix(detected.String(), "image/") {
		return Image{}, false
	}
	return Image{DeclaredType: m[1], DetectedType: detected.String(), Bytes: raw}, true
}

// BackupRef is the fallback path a reviewer can open when no inline payload is kept.
func BackupRef(fileName string) string {
	if fileName == "" {
		fileName = defaultFileName
	}
	return uploadsPrefix + fileName
}

// Normalize fills missing metadata and re-validates the payload. A malformed
// payload is kept with Validated=false so it can be handled manually.
func Normalize(in orders.PaymentProof, now time.Time) orders.PaymentProof {
	out := in
	if strings.TrimSpace(out.FileName) == "" {
		out.FileName = defaultFileName
	}
	if out.UploadedAt.IsZero() {
		out.UploadedAt = now
	}
	out.StoredAt = now
	out.BackupRef = BackupRef(out.FileName)

	out.Validated = false
	out.MimeType = ""
	if img, ok := Decode(out.DataURL); ok {
		out.Validated = true
		out.MimeType = img.DetectedType
		if out.FileSize <= 0 {
			out.FileSize = int64(len(img.Bytes))
		}
	}
	if out.FileSize < 0 {
		out.FileSize = 0
	}
	return out
}
