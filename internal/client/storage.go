package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func (c *Client) Upload(ctx context.Context, bucket, key, contentType string, r io.Reader) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + objectPath(bucket, key),
		body:        r,
		contentType: contentType,
		token:       token,
	}, nil)
}

// PublicURL is the unauthenticated download URL of an object. It does not
// check that the object exists.
func (c *Client) PublicURL(bucket, key string) string {
	return c.baseURL + "/storage/v1/object/public/" + objectPath(bucket, key)
}

func objectPath(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}
