// Package export maps Google-native document MIME types to the office
// formats they are exported as at download time. Files without a mapping
// are downloaded raw with their original name.
package export

// FolderMimeType identifies folders in Drive listings.
const FolderMimeType = "application/vnd.google-apps.folder"

// Rule describes how one native document type is materialized locally.
type Rule struct {
	// MimeType is the target format requested from the export endpoint.
	MimeType string
	// Extension is appended to the local file name, without a leading dot.
	Extension string
}

// defaultRules is the fixed export table. Matches what Google Drive for
// Desktop produces for the same document types.
var defaultRules = map[string]Rule{
	"application/vnd.google-apps.document": {
		MimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: "docx",
	},
	"application/vnd.google-apps.spreadsheet": {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: "xlsx",
	},
	"application/vnd.google-apps.presentation": {
		MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: "pptx",
	},
	"application/vnd.google-apps.drawing": {
		MimeType:  "image/svg+xml",
		Extension: "svg",
	},
}

// Table resolves native MIME types to export rules.
// The zero value is unusable; construct with DefaultTable.
type Table struct {
	rules map[string]Rule
}

// DefaultTable returns the built-in export table.
func DefaultTable() Table {
	return Table{rules: defaultRules}
}

// Resolve returns the export rule for a native MIME type.
// ok is false for types without a mapping — the raw download path.
func (t Table) Resolve(mimeType string) (Rule, bool) {
	rule, ok := t.rules[mimeType]
	return rule, ok
}

// IsFolder reports whether the MIME type denotes a Drive folder.
func IsFolder(mimeType string) bool {
	return mimeType == FolderMimeType
}
