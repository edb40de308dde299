package epub

// OPF represents the parsed Open Package Format document.
type OPF struct {
	Metadata Metadata
	Manifest map[string]ManifestItem // id -> item
	Spine    []SpineItem
	NCXPath  string
}

// Metadata represents the metadata section of the OPF.
type Metadata struct {
	Title      string
	Creators   []Creator
	Language   string
	Identifier string
}

// Author returns the first creator with the "aut" role, or the first
// creator when none is marked.
func (m Metadata) Author() string {
	for _, c := range m.Creators {
		if c.Role == "aut" {
			return c.Name
		}
	}
	if len(m.Creators) > 0 {
		return m.Creators[0].Name
	}
	return ""
}

// Creator represents a creator (author, editor, etc.) of the book.
type Creator struct {
	Name string
	Role string // e.g., "aut" for author
}

// ManifestItem represents an item in the manifest.
type ManifestItem struct {
	ID        string
	Href      string // archive path, resolved against the OPF directory
	MediaType string
}

// SpineItem represents an item reference in the spine.
type SpineItem struct {
	IDRef  string
	Linear bool
}
