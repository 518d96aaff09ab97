package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/objectstore"
)

// ObjectBucket is the object store behind the storage endpoints.
// *objectstore.GridFS satisfies it.
type ObjectBucket interface {
	Put(ctx context.Context, bucket, key, contentType string, r io.Reader) error
	Open(ctx context.Context, bucket, key string) (*objectstore.Object, error)
}

// StorageHandler serves uploads to and public reads from the image bucket.
type StorageHandler struct {
	Objects  ObjectBucket
	Bucket   string
	MaxBytes int64
}

func NewStorageHandler(objects ObjectBucket, bucket string, maxBytes int64) *StorageHandler {
	return &StorageHandler{Objects: objects, Bucket: bucket, MaxBytes: maxBytes}
}

// objectKey extracts the wildcard key, unescaping it when the request path
// carried escapes of its own.
func objectKey(c echo.Context) (string, bool) {
	key := c.Param("*")
	if c.Request().URL.RawPath != "" {
		k, err := url.PathUnescape(key)
		if err != nil {
			return "", false
		}
		key = k
	}
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// Upload stores the raw request body under /:bucket/<key>. Keys are
// immutable; an existing key answers 409.
func (h *StorageHandler) Upload(c echo.Context) error {
	if c.Param("bucket") != h.Bucket {
		return fail(c, http.StatusNotFound, "bucket not found")
	}
	key, ok := objectKey(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid object key")
	}
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if ct == "" {
		ct = "application/octet-stream"
	}

	body := c.Request().Body
	if h.MaxBytes > 0 {
		body = http.MaxBytesReader(c.Response(), body, h.MaxBytes)
	}
	if err := h.Objects.Put(c.Request().Context(), h.Bucket, key, ct, body); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.Is(err, objectstore.ErrExists):
			return fail(c, http.StatusConflict, "The resource already exists")
		case errors.As(err, &tooBig):
			return fail(c, http.StatusRequestEntityTooLarge, "object too large")
		}
		return fail(c, http.StatusInternalServerError, "upload failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"Key": h.Bucket + "/" + key})
}

// Download streams a stored object. No authentication is required.
func (h *StorageHandler) Download(c echo.Context) error {
	if c.Param("bucket") != h.Bucket {
		return fail(c, http.StatusNotFound, "bucket not found")
	}
	key, ok := objectKey(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid object key")
	}
	obj, err := h.Objects.Open(c.Request().Context(), h.Bucket, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return fail(c, http.StatusNotFound, "object not found")
		}
		return fail(c, http.StatusInternalServerError, "download failed")
	}
	defer obj.Close()

	// Objects never change once written.
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, obj.ContentType, obj)
}
