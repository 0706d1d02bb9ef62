package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/utafrali/EcommerceGo/webclient/internal/imageopt"
	"github.com/utafrali/EcommerceGo/webclient/internal/transport"
	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
	"github.com/utafrali/EcommerceGo/webclient/pkg/pagination"
	"github.com/utafrali/EcommerceGo/webclient/pkg/slug"
	"github.com/utafrali/EcommerceGo/webclient/pkg/validator"
)

const basePath = "/media"

// API is the part of transport.Dispatcher the client uses.
type API interface {
	DoJSON(ctx context.Context, req *transport.Request, out any) error
	UploadJSON(ctx context.Context, req *transport.Request, onProgress func(int), out any) error
}

// Preprocessor shrinks an image before upload. It returns its input when it
// cannot improve it.
type Preprocessor interface {
	Optimize(ctx context.Context, f *imageopt.File) *imageopt.File
}

// Client talks to the media endpoints.
type Client struct {
	api       API
	optimizer Preprocessor
	logger    *slog.Logger
}

// NewClient creates a media client. optimizer may be nil.
func NewClient(api API, optimizer Preprocessor, logger *slog.Logger) *Client {
	return &Client{api: api, optimizer: optimizer, logger: logger}
}

type envelope struct {
	Data *MediaFile `json:"data"`
}

// Upload validates in, optimizes the image and uploads it under a slugged
// file name. onProgress
// receives non-decreasing percentages and 100 once the API accepted the file.
func (c *Client) Upload(ctx context.Context, in UploadInput, onProgress func(int)) (*MediaFile, error) {
	if err := validator.Validate(in); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if len(in.Data) == 0 {
		return nil, apperrors.InvalidInput("file is empty")
	}

	file := &imageopt.File{Name: slug.FileName(in.FileName), ContentType: in.ContentType, Data: in.Data}
	if file.ContentType == "" {
		file.ContentType = http.DetectContentType(in.Data)
	}
	if !IsAllowedContentType(file.ContentType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("content type %q is not allowed", file.ContentType))
	}

	if c.optimizer != nil {
		file = c.optimizer.Optimize(ctx, file)
	}
	// Checked after optimizing: a large photo may fit once re-encoded.
	if file.Size() > MaxFileSize {
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"file size %d exceeds maximum allowed size of %d bytes", file.Size(), MaxFileSize))
	}

	form := (&transport.Form{}).
		AddField("owner_id", in.OwnerID).
		AddField("owner_type", in.OwnerType).
		AddField("alt_text", in.AltText).
		AddFile("file", file.Name, file.ContentType, file.Data)

	var out envelope
	err := c.api.UploadJSON(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   basePath,
		Form:   form,
	}, onProgress, &out)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	if out.Data == nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "upload media: empty response")
	}

	logger.WithContext(ctx, c.logger).InfoContext(ctx, "media uploaded",
		slog.String("media_id", out.Data.ID),
		slog.String("owner_type", out.Data.OwnerType),
		slog.String("owner_id", out.Data.OwnerID),
		slog.Int("original_bytes", len(in.Data)),
		slog.Int("uploaded_bytes", file.Size()),
	)
	return out.Data, nil
}

// Get returns a media file by ID.
func (c *Client) Get(ctx context.Context, id string) (*MediaFile, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("media id is required")
	}

	var out envelope
	if err := c.api.DoJSON(ctx, &transport.Request{Path: basePath + "/" + url.PathEscape(id)}, &out); err != nil {
		return nil, fmt.Errorf("get media %s: %w", id, err)
	}
	if out.Data == nil {
		return nil, apperrors.NotFound("media not found")
	}
	return out.Data, nil
}

// Delete removes a media file by ID.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("media id is required")
	}

	err := c.api.DoJSON(ctx, &transport.Request{
		Method: http.MethodDelete,
		Path:   basePath + "/" + url.PathEscape(id),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete media %s: %w", id, err)
	}
	return nil
}

// List returns one page of media files matching filter.
func (c *Client) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Result[MediaFile], error) {
	query := params.Query()
	if filter.OwnerType != "" {
		query.Set("owner_type", filter.OwnerType)
	}
	if filter.OwnerID != "" {
		query.Set("owner_id", filter.OwnerID)
	}

	var out pagination.Result[MediaFile]
	if err := c.api.DoJSON(ctx, &transport.Request{Path: basePath, Query: query}, &out); err != nil {
		return pagination.Result[MediaFile]{}, fmt.Errorf("list media: %w", err)
	}
	return out, nil
}
