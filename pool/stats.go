package pool

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Stats is a snapshot of the pool ledger.
type Stats struct {
	// Limit is the effective byte limit.
	Limit int64

	// Used is the sum of the byte sizes of all resident textures.
	Used int64

	// Available is Limit minus Used, clamped at zero.
	Available int64

	Entries   int
	Delayed   int
	Uploads   uint64
	Reuses    uint64
	Evictions uint64

	// Utilization is Used / Limit in percent.
	Utilization float64
}

var printer = message.NewPrinter(language.English)

// String returns a human-readable summary with grouped byte counts.
func (s Stats) String() string {
	return printer.Sprintf("Pool[%.1f%% used, %d/%d bytes, %d textures (%d delayed), %d uploads, %d evictions]",
		s.Utilization, s.Used, s.Limit, s.Entries, s.Delayed, s.Uploads, s.Evictions)
}
