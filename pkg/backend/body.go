package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// Body knows its own encoding. The pipeline sets whatever content type the
// body reports and never substitutes JSON for it.
type Body interface {
	Encode() (r io.Reader, contentType string, err error)
}

type jsonBody struct {
	v any
}

func JSON(v any) Body { return jsonBody{v: v} }

func (j jsonBody) Encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(j.v); err != nil {
		return nil, "", fmt.Errorf("encode json body: %w", err)
	}
	return &buf, "application/json", nil
}

type rawBody struct {
	r           io.Reader
	contentType string
}

// Raw sends r as-is. An empty contentType sends no Content-Type header.
func Raw(r io.Reader, contentType string) Body { return rawBody{r: r, contentType: contentType} }

func (b rawBody) Encode() (io.Reader, string, error) { return b.r, b.contentType, nil }

// Form is a multipart/form-data body (file uploads). Its content type carries
// the boundary generated by the multipart writer.
type Form struct {
	buf    bytes.Buffer
	w      *multipart.Writer
	err    error
	closed bool
}

func NewForm() *Form {
	f := &Form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *Form) Field(name, value string) *Form {
	if f.err != nil || f.closed {
		return f
	}
	f.err = f.w.WriteField(name, value)
	return f
}

func (f *Form) File(field, filename string, r io.Reader) *Form {
	if f.err != nil || f.closed {
		return f
	}
	part, err := f.w.CreateFormFile(field, filename)
	if err != nil {
		f.err = err
		return f
	}
	_, f.err = io.Copy(part, r)
	return f
}

func (f *Form) Encode() (io.Reader, string, error) {
	if !f.closed {
		f.closed = true
		if err := f.w.Close(); err != nil && f.err == nil {
			f.err = err
		}
	}
	if f.err != nil {
		return nil, "", fmt.Errorf("encode form body: %w", f.err)
	}
	return bytes.NewReader(f.buf.Bytes()), f.w.FormDataContentType(), nil
}
