package lifecycle

// Guard is a pure precondition over the transition context.
type Guard struct {
	Name      string
	Retryable bool
	// Check returns an empty string when the guard holds, otherwise the
	// reason it failed.
	Check func(Context) string
}

const (
	GuardMissingFile        = "missing-file"
	GuardContentsLoaded     = "contents-loaded"
	GuardBlockedPagesMarked = "blocked-pages-marked"
	GuardContentsProcessed  = "contents-processed"
	GuardRecordPersisted    = "record-persisted"
)

var missingFileGuard = Guard{
	Name: GuardMissingFile,
	Check: func(c Context) string {
		if c.Record.Missing {
			return "source file is missing"
		}
		return ""
	},
}

var contentsLoadedGuard = Guard{
	Name:      GuardContentsLoaded,
	Retryable: true,
	Check: func(c Context) string {
		if !c.Record.ContentsLoaded {
			return "archive contents not loaded"
		}
		return ""
	},
}

var blockedPagesMarkedGuard = Guard{
	Name:      GuardBlockedPagesMarked,
	Retryable: true,
	Check: func(c Context) string {
		if !c.Record.BlockedPagesMarked {
			return "blocked pages not marked"
		}
		return ""
	},
}

var contentsProcessedGuard = Guard{
	Name:      GuardContentsProcessed,
	Retryable: true,
	Check: func(c Context) string {
		switch {
		case !c.Record.File.Populated():
			return "file details not populated"
		case !c.Record.ContentsLoaded:
			return "archive contents not loaded"
		case !c.Record.BlockedPagesMarked:
			return "blocked pages not marked"
		}
		return ""
	},
}

var recordPersistedGuard = Guard{
	Name:      GuardRecordPersisted,
	Retryable: true,
	Check: func(c Context) string {
		if c.Record.ID <= 0 {
			return "record has no library id"
		}
		if !c.Record.Cataloged {
			return "record not in catalog"
		}
		return ""
	},
}
