package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
)

// File is one file part of a multipart upload
type File struct {
	// Field defaults to "files".
	Field  string
	Name   string
	Reader io.Reader
}

// Upload posts identifier fields and file parts as multipart/form-data
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, files []File) (*Response, error) {
	if len(files) == 0 {
		return nil, errors.New("at least one file is required")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	for _, f := range files {
		field := f.Field
		if field == "" {
			field = "files"
		}
		part, err := w.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create part for %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return c.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Reader:      &buf,
		ContentType: w.FormDataContentType(),
	})
}
