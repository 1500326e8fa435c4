package driveapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
)

// fieldsMask is the exact field set every list/get call requests — the
// reconciler never needs more than identity, version, hash, parentage and
// trash state.
const fieldsMask = "id, name, md5Checksum, mimeType, parents, version, trashed"

// ListFiles executes a files.list query. q is the hosted drive's native
// query-expression string, built by the caller through plain string
// concatenation (e.g. "name = 'X' and 'PID' in parents") — this client adds
// no query-building abstraction on top of it.
func (c *Client) ListFiles(ctx context.Context, q string) ([]FileRecord, error) {
	var out []FileRecord

	pageToken := ""

	for {
		path := fmt.Sprintf("/files?q=%s&fields=%s&pageSize=1000",
			url.QueryEscape(q),
			url.QueryEscape("nextPageToken, files("+fieldsMask+")"),
		)
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}

		resp, err := c.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var lr listResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&lr); decErr != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("driveapi: decoding list response: %w", decErr)
		}
		resp.Body.Close()

		for _, f := range lr.Files {
			out = append(out, f.toFileRecord())
		}

		if lr.NextPageToken == "" {
			return out, nil
		}

		pageToken = lr.NextPageToken
	}
}

// GetFile fetches a single file by id. Returns ErrNotFound if the id does
// not exist or is trashed in a way the service no longer serves.
func (c *Client) GetFile(ctx context.Context, id string) (FileRecord, error) {
	path := fmt.Sprintf("/files/%s?fields=%s", url.PathEscape(id), url.QueryEscape(fieldsMask))

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return FileRecord{}, err
	}
	defer resp.Body.Close()

	var fr fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return FileRecord{}, fmt.Errorf("driveapi: decoding file response: %w", err)
	}

	return fr.toFileRecord(), nil
}

// GetFileByName looks up a file by exact name within an optional parent
// folder. Returns ok=false (not an error) if no match exists — the hosted
// drive treats "not found" as an empty list, not a 404, per the hosted
// drive's native query semantics.
func (c *Client) GetFileByName(ctx context.Context, name string, parentID string) (rec FileRecord, ok bool, err error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", EscapeQueryLiteral(name))
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", EscapeQueryLiteral(parentID))
	}

	files, err := c.ListFiles(ctx, q)
	if err != nil {
		return FileRecord{}, false, err
	}

	if len(files) == 0 {
		return FileRecord{}, false, nil
	}

	return files[0], true, nil
}

// CreateDir creates a folder named name under parentID.
func (c *Client) CreateDir(ctx context.Context, name, parentID string) (FileRecord, error) {
	body, err := json.Marshal(createFileRequest{
		Name:     name,
		Parents:  parentIDs(parentID),
		MimeType: FolderMimeType,
	})
	if err != nil {
		return FileRecord{}, fmt.Errorf("driveapi: encoding create-folder request: %w", err)
	}

	path := "/files?fields=" + url.QueryEscape(fieldsMask)

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return FileRecord{}, err
	}
	defer resp.Body.Close()

	var fr fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return FileRecord{}, fmt.Errorf("driveapi: decoding create-folder response: %w", err)
	}

	return fr.toFileRecord(), nil
}

// RenameFile renames and/or reparents a file. oldParentID may be empty if
// the caller does not know (or the file is not being reparented); newParentID
// may be empty to leave the parent unchanged.
func (c *Client) RenameFile(ctx context.Context, id, newName, oldParentID, newParentID string) (FileRecord, error) {
	body, err := json.Marshal(updateFileRequest{Name: newName})
	if err != nil {
		return FileRecord{}, fmt.Errorf("driveapi: encoding rename request: %w", err)
	}

	path := fmt.Sprintf("/files/%s?fields=%s", url.PathEscape(id), url.QueryEscape(fieldsMask))
	if newParentID != "" {
		path += "&addParents=" + url.QueryEscape(newParentID)
	}

	if oldParentID != "" && oldParentID != newParentID {
		path += "&removeParents=" + url.QueryEscape(oldParentID)
	}

	resp, err := c.Do(ctx, http.MethodPatch, path, bytes.NewReader(body))
	if err != nil {
		return FileRecord{}, err
	}
	defer resp.Body.Close()

	var fr fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return FileRecord{}, fmt.Errorf("driveapi: decoding rename response: %w", err)
	}

	return fr.toFileRecord(), nil
}

// DeleteFile permanently deletes a file (not a move-to-trash).
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	resp, err := c.Do(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func parentIDs(parentID string) []string {
	if parentID == "" {
		return nil
	}

	return []string{parentID}
}

// EscapeQueryLiteral backslash-escapes single quotes and backslashes in a
// string-literal operand of the hosted drive's query expression language.
func EscapeQueryLiteral(s string) string {
	var buf bytes.Buffer

	for _, r := range s {
		if r == '\'' || r == '\\' {
			buf.WriteByte('\\')
		}

		buf.WriteRune(r)
	}

	return buf.String()
}
