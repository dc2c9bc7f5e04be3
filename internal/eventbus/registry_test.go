package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryNotifyInOrder(t *testing.T) {
	r := NewRegistry[int]()
	var got []string
	r.Add("b", func(_ context.Context, v int) error { got = append(got, "b"); return nil })
	r.Add("a", func(_ context.Context, v int) error { got = append(got, "a"); return nil })
	if err := r.Notify(context.Background(), 1); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestRegistryRemoveInsideHandler(t *testing.T) {
	r := NewRegistry[string]()
	calls := 0
	r.Add("self", func(context.Context, string) error {
		calls++
		r.Remove("self")
		r.Add("late", func(context.Context, string) error { calls += 10; return nil })
		return nil
	})
	assert.NoError(t, r.Notify(context.Background(), "x"))
	assert.Equal(t, 1, calls, "handlers added during Notify run on the next event")
	assert.NoError(t, r.Notify(context.Background(), "y"))
	assert.Equal(t, 11, calls)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryJoinsErrors(t *testing.T) {
	r := NewRegistry[int]()
	errA := errors.New("a failed")
	ran := false
	r.Add("a", func(context.Context, int) error { return errA })
	r.Add("b", func(context.Context, int) error { ran = true; return nil })
	err := r.Notify(context.Background(), 0)
	assert.ErrorIs(t, err, errA)
	assert.True(t, ran)
	assert.False(t, r.Remove("missing"))
}
