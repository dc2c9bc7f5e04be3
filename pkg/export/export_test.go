package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/scheduler"
)

func entries() []scheduler.JournalEntry {
	s := model.NewSchedule(0, 1704067200, 900, 2)
	s.Consumption = []int{300, 100}
	s.Production = []int{-50, 0}
	return []scheduler.JournalEntry{
		{Time: 1704067200, Kind: model.PublicationInitial, From: 1704067200, To: 1704069000, Outcome: scheduler.OutcomePublished, Schedule: &s},
		{Time: 1704067300, Kind: model.PublicationUpdate, From: 1704067200, To: 1704069000, Outcome: scheduler.OutcomeFailed, Error: "fms down, retry"},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "time,kind,from,to,outcome,error,slots,net_wh" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",published,,2,350") {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	if !strings.Contains(lines[2], `"fms down, retry"`) {
		t.Fatalf("error column not quoted: %q", lines[2])
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("empty export = %q", buf.String())
	}
	buf.Reset()
	if err := WriteJSON(&buf, entries()); err != nil {
		t.Fatal(err)
	}
	var got []scheduler.JournalEntry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Schedule == nil || got[1].Error != "fms down, retry" {
		t.Fatalf("unexpected round trip %+v", got)
	}
}
