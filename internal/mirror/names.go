package mirror

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/drivemirror/drivemirror/internal/drive"
	"github.com/drivemirror/drivemirror/internal/export"
)

// localName pairs a remote item with the file or directory name it gets on
// disk, plus the export rule chosen for it (zero Rule for raw downloads).
type localName struct {
	item     drive.Item
	name     string
	rule     export.Rule
	exported bool
}

// assignLocalNames orders a folder's children deterministically and gives
// each a unique local name. Folders and files share one namespace because
// they share one directory. Collisions get " (1)" suffixes, the same way
// Google Drive for Desktop disambiguates.
func assignLocalNames(children []drive.Item, rules export.Table) []localName {
	sorted := make([]drive.Item, len(children))
	copy(sorted, children)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}

		if !sorted[i].ModifiedAt.Equal(sorted[j].ModifiedAt) {
			return sorted[i].ModifiedAt.Before(sorted[j].ModifiedAt)
		}

		return sorted[i].ID < sorted[j].ID
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]localName, 0, len(sorted))

	for _, item := range sorted {
		ln := localName{item: item}

		ext := ""
		if !item.IsFolder {
			if rule, ok := rules.Resolve(item.MimeType); ok {
				ln.rule = rule
				ln.exported = true
				ext = "." + rule.Extension
			}
		}

		base := sanitizeName(item.Name)
		for {
			candidate := base + ext
			if !seen[candidate] {
				ln.name = candidate
				seen[candidate] = true

				break
			}

			base += " (1)"
		}

		out = append(out, ln)
	}

	return out
}

// sanitizeName makes a remote display name safe as a local file name.
// NFC normalization keeps names stable across macOS (NFD) and Linux
// filesystems; path separators become underscores.
func sanitizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\x00", "_")

	if name == "" || name == "." || name == ".." {
		return "untitled"
	}

	return name
}
