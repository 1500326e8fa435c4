package driveapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DownloadFile streams a file's content. The caller must close the
// returned io.ReadCloser.
func (c *Client) DownloadFile(ctx context.Context, id string) (io.ReadCloser, error) {
	path := fmt.Sprintf("/files/%s?alt=media", url.PathEscape(id))

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}
