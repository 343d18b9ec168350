package drive

import (
	"log/slog"
	"time"

	drivev3 "google.golang.org/api/drive/v3"

	"github.com/drivemirror/drivemirror/internal/export"
)

// Timestamp validation bounds — timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// Item is a normalized Drive file or folder. Callers never see raw API data.
type Item struct {
	ID         string
	Name       string
	MimeType   string
	Size       int64
	IsFolder   bool
	Trashed    bool
	ModifiedAt time.Time
}

// toItem normalizes a Drive API file resource into our Item type.
func toItem(f *drivev3.File, logger *slog.Logger) Item {
	return Item{
		ID:         f.Id,
		Name:       f.Name,
		MimeType:   f.MimeType,
		Size:       f.Size,
		IsFolder:   export.IsFolder(f.MimeType),
		Trashed:    f.Trashed,
		ModifiedAt: parseTimestamp(f.ModifiedTime, f.Id, logger),
	}
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty modifiedTime, using current time",
			slog.String("item_id", itemID),
		)

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid modifiedTime, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("modifiedTime out of valid range, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}
