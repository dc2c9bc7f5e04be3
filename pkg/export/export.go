// Package export writes publication journal entries for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
)

// WriteJSON writes the entries as one JSON array.
func WriteJSON(w io.Writer, entries []scheduler.JournalEntry) error {
	if entries == nil {
		entries = []scheduler.JournalEntry{}
	}
	return json.NewEncoder(w).Encode(entries)
}

// WriteCSV writes one row per entry. Schedule payloads are summarized by
// their slot count and net energy.
func WriteCSV(w io.Writer, entries []scheduler.JournalEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "kind", "from", "to", "outcome", "error", "slots", "net_wh"}); err != nil {
		return err
	}
	for _, e := range entries {
		slots, net := "", ""
		if e.Schedule != nil {
			var sum int
			for i := 0; i < e.Schedule.Slots(); i++ {
				sum += e.Schedule.Net(i)
			}
			slots, net = strconv.Itoa(e.Schedule.Slots()), strconv.Itoa(sum)
		}
		rec := []string{
			time.Unix(e.Time, 0).UTC().Format(time.RFC3339),
			string(e.Kind),
			time.Unix(e.From, 0).UTC().Format(time.RFC3339),
			time.Unix(e.To, 0).UTC().Format(time.RFC3339),
			e.Outcome,
			e.Error,
			slots,
			net,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
