package organization

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

type Organization struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	Name      string            `db:"name" json:"name"`
	Slug      string            `db:"slug" json:"slug"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// Slugify lowercases the name and collapses every non-alphanumeric run
// into a single hyphen. Slugs are globally unique; uniqueness itself is
// enforced by the repository.
func Slugify(name string) string {
	var b strings.Builder
	prevHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevHyphen = false
			continue
		}
		if !prevHyphen {
			b.WriteByte('-')
			prevHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
