package comic

// Credit is a creator credit such as writer or penciller.
type Credit struct {
	Role string
	Name string
}

// PageHint is a per-page annotation from the sidecar, keyed by image index.
type PageHint struct {
	Image int
	Type  string
}

// Metadata is bibliographic data from ComicInfo.xml. Fields are free text.
type Metadata struct {
	Series     string
	Volume     string
	Number     string
	Title      string
	Summary    string
	Publisher  string
	Imprint    string
	Year       int
	Month      int
	Day        int
	Web        string
	Notes      string
	Credits    []Credit
	Characters []string
	Teams      []string
	Locations  []string
	StoryArcs  []string
	PageHints  []PageHint
	PageCount  int
	Language   string
	Format     string
	AgeRating  string
	BlackWhite bool
	MangaRTL   bool
}

// Empty reports whether no field was populated.
func (m Metadata) Empty() bool {
	return m.Series == "" && m.Title == "" && m.Number == "" && m.Volume == "" &&
		m.Publisher == "" && m.Summary == "" && len(m.Credits) == 0 && len(m.PageHints) == 0
}

// HintFor returns the page type hint for image index, if any.
func (m Metadata) HintFor(index int) string {
	for _, h := range m.PageHints {
		if h.Image == index {
			return h.Type
		}
	}
	return ""
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	out.Credits = append([]Credit(nil), m.Credits...)
	out.Characters = append([]string(nil), m.Characters...)
	out.Teams = append([]string(nil), m.Teams...)
	out.Locations = append([]string(nil), m.Locations...)
	out.StoryArcs = append([]string(nil), m.StoryArcs...)
	out.PageHints = append([]PageHint(nil), m.PageHints...)
	return out
}
