// Package visibility defines the three-tier access model shared by recipes
// and collections, along with the bridge from the legacy isPublic boolean.
package visibility

// Visibility is the access tier of a recipe or collection.
type Visibility string

const (
	// Private means only the owner can see the document.
	Private Visibility = "private"
	// Unlisted means anyone with a direct reference can view the document,
	// but it does not appear in discovery feeds.
	Unlisted Visibility = "unlisted"
	// Public means the document is viewable and appears in discovery feeds.
	Public Visibility = "public"
)

// IsAccessible reports whether a non-owner may view a document of the given
// tier through a direct reference.
func IsAccessible(v Visibility) bool {
	return v == Unlisted || v == Public
}

// IsDiscoverable reports whether a document of the given tier appears in
// discovery feeds.
func IsDiscoverable(v Visibility) bool {
	return v == Public
}

// Migrate maps the legacy isPublic boolean onto the tier model. Documents
// written before the visibility field existed either have isPublic set or no
// sharing fields at all; an absent field decodes to false, so both cases
// resolve to Private. The legacy model had no middle tier, so Migrate never
// produces Unlisted.
func Migrate(isPublic bool) Visibility {
	if isPublic {
		return Public
	}
	return Private
}

// Resolve gives the effective tier of a document that may predate the
// visibility field. The explicit field is ground truth when present; only an
// absent (empty) field falls back to the legacy boolean.
func Resolve(v Visibility, isPublic bool) Visibility {
	if v == "" {
		return Migrate(isPublic)
	}
	return v
}
