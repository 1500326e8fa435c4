package driveapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
)

// UploadFile creates a new file named name under parentID with the given
// content, via the hosted drive's two-step resumable protocol: a metadata
// POST that returns an upload session URL in the Location header, followed
// by a single PUT of the full body to that URL. No chunking — this client
// never splits a body across requests.
func (c *Client) UploadFile(ctx context.Context, name, parentID string, data []byte) (FileRecord, error) {
	meta, err := json.Marshal(createFileRequest{Name: name, Parents: parentIDs(parentID)})
	if err != nil {
		return FileRecord{}, fmt.Errorf("driveapi: encoding upload metadata: %w", err)
	}

	sessionURL, err := c.startUploadSession(ctx, http.MethodPost, "/files?uploadType=resumable", meta)
	if err != nil {
		return FileRecord{}, err
	}

	return c.putSessionContent(ctx, sessionURL, data)
}

// UpdateFile replaces the content of an existing file, via the same
// two-step resumable protocol as UploadFile.
func (c *Client) UpdateFile(ctx context.Context, id string, data []byte) (FileRecord, error) {
	path := fmt.Sprintf("/files/%s?uploadType=resumable", url.PathEscape(id))

	sessionURL, err := c.startUploadSession(ctx, http.MethodPatch, path, nil)
	if err != nil {
		return FileRecord{}, err
	}

	return c.putSessionContent(ctx, sessionURL, data)
}

// startUploadSession issues the metadata request that opens a resumable
// upload session and returns the session URL from the Location header.
func (c *Client) startUploadSession(ctx context.Context, method, path string, metaBody []byte) (string, error) {
	var body *bytes.Reader
	if metaBody != nil {
		body = bytes.NewReader(metaBody)
	} else {
		body = bytes.NewReader(nil)
	}

	resp, err := c.doRetry(ctx, c.uploadBaseURL+path, method, body, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("driveapi: upload session response missing Location header")
	}

	return loc, nil
}

// putSessionContent uploads the full file body to a previously opened
// resumable session URL and decodes the resulting file resource.
func (c *Client) putSessionContent(ctx context.Context, sessionURL string, data []byte) (FileRecord, error) {
	headers := http.Header{"Content-Type": []string{"application/octet-stream"}}

	resp, err := c.DoAbsolute(ctx, http.MethodPut, sessionURL, bytes.NewReader(data), headers)
	if err != nil {
		return FileRecord{}, err
	}
	defer resp.Body.Close()

	var fr fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return FileRecord{}, fmt.Errorf("driveapi: decoding upload response: %w", err)
	}

	return fr.toFileRecord(), nil
}
