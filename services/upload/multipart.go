package upload

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// DefaultBoundary is the fixed boundary token the firmware has always
// sent. Servers in the field were tested against it.
const DefaultBoundary = "----WebKitFormBoundary7MA4YWxkTrZu0gW"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// MultipartEncoder builds single-file multipart/form-data bodies with a
// fixed boundary. It holds no per-request state.
type MultipartEncoder struct {
	boundary string
	field    string
	mime     string
}

// NewMultipartEncoder validates the boundary once so Encode cannot fail
// on it later.
func NewMultipartEncoder(boundary, field, mime string) (*MultipartEncoder, error) {
	if boundary == "" {
		boundary = DefaultBoundary
	}
	if err := multipart.NewWriter(&bytes.Buffer{}).SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("multipart boundary %q: %w", boundary, err)
	}
	if field == "" {
		field = "file"
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	return &MultipartEncoder{boundary: boundary, field: field, mime: mime}, nil
}

// ContentType is the request Content-Type header value.
func (e *MultipartEncoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// Encode wraps data as the only part of a form:
//
//	--{boundary}\r\n
//	Content-Disposition: form-data; name="{field}"; filename="{name}"\r\n
//	Content-Type: {mime}\r\n\r\n
//	{data}\r\n
//	--{boundary}--\r\n
func (e *MultipartEncoder) Encode(filename string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) + 2*len(e.boundary) + 192)

	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(e.boundary); err != nil {
		return nil, fmt.Errorf("set boundary: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(e.field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", e.mime)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), nil
}
