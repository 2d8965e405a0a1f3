package comic

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a record. The lifecycle package owns
// the transition rules; the values live here so storage can persist them.
type State string

const (
	StateCreated            State = "created"
	StateFileContentsLoaded State = "file_contents_loaded"
	StateBlockedPagesMarked State = "blocked_pages_marked"
	StateReadyForProcessing State = "ready_for_processing"
	StateProcessed          State = "processed"
	StateDeleted            State = "deleted"
)

var stateOrder = map[State]int{
	StateCreated:            0,
	StateFileContentsLoaded: 1,
	StateBlockedPagesMarked: 2,
	StateReadyForProcessing: 3,
	StateProcessed:          4,
}

// Rank returns the happy-path position of s, or -1 for deleted and unknown
// states.
func (s State) Rank() int {
	if rank, ok := stateOrder[s]; ok {
		return rank
	}
	return -1
}

// Terminal reports whether no further pipeline work applies.
func (s State) Terminal() bool {
	return s == StateProcessed || s == StateDeleted
}

// ParseState validates a persisted state value.
func ParseState(value string) (State, error) {
	s := State(value)
	if s == StateDeleted || s.Rank() >= 0 {
		return s, nil
	}
	return "", fmt.Errorf("unknown lifecycle state %q", value)
}

// AllStates lists states in display order.
func AllStates() []State {
	return []State{
		StateCreated,
		StateFileContentsLoaded,
		StateBlockedPagesMarked,
		StateReadyForProcessing,
		StateProcessed,
		StateDeleted,
	}
}

// FileDetails captures the source file identity at load time.
type FileDetails struct {
	Size int64
	Hash string
}

// Populated reports whether the file has been measured.
func (d FileDetails) Populated() bool {
	return d.Size > 0 && d.Hash != ""
}

// Record is one comic archive in the library.
type Record struct {
	ID         int64
	SourcePath string
	// Format is the container family tag (CBZ, CBR, CB7, unknown).
	Format string
	// Subtype is the detected content subtype, e.g. "zip".
	Subtype  string
	State    State
	Pages    []Page
	Metadata Metadata
	Missing  bool
	File     FileDetails

	ContentsLoaded     bool
	BlockedPagesMarked bool
	// Cataloged is set once the record is visible in the library catalog.
	Cataloged bool

	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time

	// PageData holds raw page bytes keyed by filename between the load stage
	// and the page cache. It is never persisted.
	PageData map[string][]byte
}

// New returns a fresh record for sourcePath.
func New(sourcePath string) *Record {
	now := time.Now().UTC()
	return &Record{
		SourcePath: sourcePath,
		Format:     "unknown",
		State:      StateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasPage reports whether a page with filename already exists.
func (r *Record) HasPage(filename string) bool {
	for _, p := range r.Pages {
		if p.Filename == filename {
			return true
		}
	}
	return false
}

// NextPageIndex is the index the next appended page receives.
func (r *Record) NextPageIndex() int {
	return len(r.Pages)
}

// AddPage appends p at the next sequential index. It fails if the filename
// is already present so a page can never be recorded twice.
func (r *Record) AddPage(p Page, data []byte) (Page, error) {
	if r.HasPage(p.Filename) {
		return Page{}, fmt.Errorf("page %q already recorded", p.Filename)
	}
	p.Index = r.NextPageIndex()
	r.Pages = append(r.Pages, p)
	if data != nil {
		if r.PageData == nil {
			r.PageData = make(map[string][]byte)
		}
		r.PageData[p.Filename] = data
	}
	return p, nil
}

// ReleasePageData drops transient page bytes.
func (r *Record) ReleasePageData() {
	r.PageData = nil
}

// BlockedCount returns the number of pages flagged as blocked.
func (r *Record) BlockedCount() int {
	n := 0
	for _, p := range r.Pages {
		if p.Blocked {
			n++
		}
	}
	return n
}

// ClearDerived drops everything extracted from the archive so it can be
// ingested again from scratch.
func (r *Record) ClearDerived() {
	r.Pages = nil
	r.Metadata = Metadata{}
	r.File = FileDetails{}
	r.ContentsLoaded = false
	r.BlockedPagesMarked = false
	r.Cataloged = false
	r.Missing = false
	r.LastError = ""
	r.PageData = nil
}

// Clone returns a deep copy. Transient page bytes are shared, not copied.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Pages = append([]Page(nil), r.Pages...)
	out.Metadata = r.Metadata.Clone()
	if r.PageData != nil {
		out.PageData = make(map[string][]byte, len(r.PageData))
		for k, v := range r.PageData {
			out.PageData[k] = v
		}
	}
	return &out
}

// Page is one image entry recorded from the archive.
type Page struct {
	Index    int
	Filename string
	Hash     string
	Size     int64
	Width    int
	Height   int
	// Type is the ComicInfo page type hint, e.g. "FrontCover".
	Type    string
	Blocked bool
}

// PageTypeDeleted marks pages the sidecar says should be hidden.
const PageTypeDeleted = "Deleted"
