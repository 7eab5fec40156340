// Package htmlutil converts feed-supplied HTML fragments to plain text.
package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// ToText strips markup from a product description. The feed mixes plain
// strings with HTML fragments depending on how the listing was entered, so
// everything goes through the same parser before storage.
func ToText(s string) string {
	return strings.TrimSpace(html2text.HTML2Text(s))
}
