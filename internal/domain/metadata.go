package domain

import "strings"

const (
	DefaultRegion    = "NA"
	UnknownPublisher = "unknown"
)

// GameMetadata is the metadata.json document written into every game
// directory. The library scanner reads the same schema back.
type GameMetadata struct {
	Code      string            `json:"code"`
	Console   string            `json:"console"`
	ID        int64             `json:"id"`
	Title     map[string]string `json:"title"`
	Publisher map[string]string `json:"publisher"`
	Year      int               `json:"year"`
	Region    string            `json:"region"`
}

// NewGameMetadata builds the record for an installed game. Without a hint the
// result is a placeholder carrying only the requested name.
func NewGameMetadata(consoleCode, slug, gameName string, hint *CatalogHint) GameMetadata {
	console := strings.ToUpper(consoleCode)
	meta := GameMetadata{
		Code:      strings.ToLower(console) + "-" + slug,
		Console:   console,
		Title:     map[string]string{DefaultRegion: gameName},
		Publisher: map[string]string{DefaultRegion: UnknownPublisher},
		Region:    DefaultRegion,
	}

	if hint == nil {
		return meta
	}

	meta.ID = hint.ID
	if name := strings.TrimSpace(hint.Name); name != "" {
		meta.Title[DefaultRegion] = name
	}
	if publisher := strings.TrimSpace(hint.Publisher); publisher != "" {
		meta.Publisher[DefaultRegion] = publisher
	}
	meta.Year = hint.Year
	return meta
}

// TitleFor returns the title for region, falling back to any title present.
func (m GameMetadata) TitleFor(region string) string {
	if title, ok := m.Title[region]; ok {
		return title
	}
	for _, title := range m.Title {
		return title
	}
	return ""
}
