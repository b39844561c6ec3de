package flatten

import (
	"path/filepath"
	"strings"
)

// DownloadName returns the file name an exported document is offered
// under: the stem of the name the user uploaded, or of the stored name,
// followed by "-edited.pdf".
func DownloadName(original, internal string) string {
	name := original
	if strings.TrimSpace(name) == "" {
		name = internal
	}
	// Browsers may send a full client path.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" || stem == "." || stem == "/" {
		stem = "document"
	}
	return stem + "-edited.pdf"
}
