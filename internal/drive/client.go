package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
)

// listPageSize is the pageSize for list requests. 1000 is the maximum
// allowed by the Drive API for file collections.
const listPageSize = 1000

// listFields limits list responses to the fields we normalize into Item.
const listFields = "nextPageToken, files(id, name, mimeType, size, trashed, modifiedTime)"

// itemFields limits single-item responses to the fields we normalize into Item.
const itemFields = "id, name, mimeType, size, trashed, modifiedTime"

// Client is a thin handle to the Drive API. It normalizes responses and
// classifies errors; retry is the caller's concern (the mirror walker wraps
// every call in a retry policy).
type Client struct {
	svc    *drivev3.Service
	logger *slog.Logger
}

// NewClient wraps an authenticated Drive service.
func NewClient(svc *drivev3.Service, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{svc: svc, logger: logger}
}

// RootID resolves the account root folder's opaque ID.
func (c *Client) RootID(ctx context.Context) (string, error) {
	f, err := c.svc.Files.Get("root").Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: resolving root folder: %w", wrapErr(err))
	}

	return f.Id, nil
}

// GetItem retrieves a single file or folder by ID.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	f, err := c.svc.Files.Get(itemID).Fields(itemFields).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drive: getting item %s: %w", itemID, wrapErr(err))
	}

	item := toItem(f, c.logger)

	return &item, nil
}

// ListChildren returns all non-trashed children of a folder, handling
// pagination automatically. Items are returned in API order; callers that
// need deterministic ordering sort for themselves.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	c.logger.Info("listing children", slog.String("folder_id", folderID))

	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryTerm(folderID))

	var items []Item

	pageToken := ""
	page := 1

	for {
		call := c.svc.Files.List().
			Q(query).
			Fields(listFields).
			PageSize(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("drive: listing children of %s: %w", folderID, wrapErr(err))
		}

		for _, f := range resp.Files {
			items = append(items, toItem(f, c.logger))
		}

		c.logger.Debug("fetched children page",
			slog.Int("page", page),
			slog.Int("count", len(resp.Files)),
		)

		if resp.NextPageToken == "" {
			break
		}

		pageToken = resp.NextPageToken
		page++
	}

	c.logger.Info("listed children complete",
		slog.String("folder_id", folderID),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// destWriter wraps the caller's destination writer and remembers the first
// write failure, so a stream error from io.Copy can be attributed to the
// local side rather than the remote body.
type destWriter struct {
	w   io.Writer
	err error
}

func (d *destWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if err != nil && d.err == nil {
		d.err = err
	}

	return n, err
}

// Download streams a file's raw content to the given writer.
// Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, itemID string, w io.Writer) (int64, error) {
	c.logger.Info("downloading item", slog.String("item_id", itemID))

	resp, err := c.svc.Files.Get(itemID).Context(ctx).Download()
	if err != nil {
		return 0, fmt.Errorf("drive: downloading %s: %w", itemID, wrapErr(err))
	}
	defer resp.Body.Close()

	dst := &destWriter{w: w}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		if dst.err != nil {
			return n, fmt.Errorf("drive: writing %s to destination: %w: %w", itemID, ErrLocalWrite, dst.err)
		}

		return n, fmt.Errorf("drive: streaming content of %s: %w", itemID, err)
	}

	c.logger.Debug("download complete",
		slog.String("item_id", itemID),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}

// Export streams a native document converted to mimeType to the given
// writer. Returns the number of bytes written.
func (c *Client) Export(ctx context.Context, itemID, mimeType string, w io.Writer) (int64, error) {
	c.logger.Info("exporting item",
		slog.String("item_id", itemID),
		slog.String("mime_type", mimeType),
	)

	resp, err := c.svc.Files.Export(itemID, mimeType).Context(ctx).Download()
	if err != nil {
		return 0, fmt.Errorf("drive: exporting %s as %s: %w", itemID, mimeType, wrapErr(err))
	}
	defer resp.Body.Close()

	dst := &destWriter{w: w}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		if dst.err != nil {
			return n, fmt.Errorf("drive: writing export of %s to destination: %w: %w", itemID, ErrLocalWrite, dst.err)
		}

		return n, fmt.Errorf("drive: streaming export of %s: %w", itemID, err)
	}

	c.logger.Debug("export complete",
		slog.String("item_id", itemID),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}

// About returns the authenticated user's email address.
func (c *Client) About(ctx context.Context) (string, error) {
	about, err := c.svc.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: getting account info: %w", wrapErr(err))
	}

	if about.User == nil {
		return "", fmt.Errorf("drive: account info has no user")
	}

	return about.User.EmailAddress, nil
}

// escapeQueryTerm escapes single quotes and backslashes for interpolation
// into a Drive query string.
func escapeQueryTerm(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
