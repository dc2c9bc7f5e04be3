package metrics

import (
	"errors"
	"testing"
)

type recordSink struct {
	count int
	err   error
}

func (r *recordSink) RecordPublication(PublicationRecord) error {
	r.count++
	return r.err
}

func (r *recordSink) RecordDeviation(DeviationRecord) error {
	r.count++
	return nil
}

// TestMultiSink ensures records reach every sink even when one fails.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{err: errors.New("down")}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordPublication(PublicationRecord{Kind: "initial"}); err == nil {
		t.Fatalf("expected joined error")
	}
	if err := m.RecordDeviation(DeviationRecord{DeviationWh: 3}); err != nil {
		t.Fatalf("record deviation: %v", err)
	}
	if err := m.RecordPhase(PhaseRecord{Phase: "idle"}); err != nil {
		t.Fatalf("record phase: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("records not forwarded: %d %d", s1.count, s2.count)
	}
}

type closingSink struct {
	recordSink
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSinkClose(t *testing.T) {
	c := &closingSink{}
	NewMultiSink(&recordSink{}, c).Close()
	if !c.closed {
		t.Fatal("closer not closed")
	}
}
