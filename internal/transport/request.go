package transport

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Request describes one logical call. The body is encoded once and replayed
// verbatim if the call is retried.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is sent as-is. Ignored when Form is set.
	Body []byte
	// Form is sent as multipart/form-data.
	Form *Form

	// SkipAuth sends no bearer token and disables the refresh and retry
	// policy. Used by the login call.
	SkipAuth bool
}

// FormField is a plain multipart field.
type FormField struct {
	Name  string
	Value string
}

// FormFile is a file part of a multipart form.
type FormFile struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Form is an ordered multipart/form-data payload.
type Form struct {
	Fields []FormField
	Files  []FormFile
}

// AddField appends a plain field.
func (f *Form) AddField(name, value string) *Form {
	f.Fields = append(f.Fields, FormField{Name: name, Value: value})
	return f
}

// AddFile appends a file part.
func (f *Form) AddFile(field, fileName, contentType string, data []byte) *Form {
	f.Files = append(f.Files, FormFile{
		Field:       field,
		FileName:    fileName,
		ContentType: contentType,
		Data:        data,
	})
	return f
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Encode renders the form and returns the body with its content type.
func (f *Form) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.Fields {
		if err := w.WriteField(field.Name, field.Value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field.Name, err)
		}
	}

	for _, file := range f.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(file.Field), quoteEscaper.Replace(file.FileName)))
		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", file.Field, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", file.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// payload is a request body ready to be replayed on every attempt.
type payload struct {
	body        []byte
	contentType string
	multipart   bool
}

func (r *Request) payload() (payload, error) {
	if r.Form != nil {
		body, ct, err := r.Form.Encode()
		if err != nil {
			return payload{}, err
		}
		return payload{body: body, contentType: ct, multipart: true}, nil
	}
	return payload{body: r.Body, contentType: "application/json"}, nil
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}
