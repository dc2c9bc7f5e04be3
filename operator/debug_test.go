package operator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

func TestDebugChannelRecords(t *testing.T) {
	d := NewDebugChannel("vsp1", logger.NopLogger{})
	require.NoError(t, d.PublishSchedule(context.Background(), sampleSchedule(), sampleFlexibility(), fms.ScheduleUpdate))
	last, n := d.Last()
	require.NotNil(t, last)
	assert.Equal(t, 1, n)
	assert.Equal(t, fms.ScheduleUpdate.String(), last.Type)
	assert.Equal(t, "vsp1", last.Site)

	require.NoError(t, d.DeclineScheduleRequest(context.Background()))
	last, n = d.Last()
	assert.Equal(t, 2, n)
	assert.Equal(t, fms.ScheduleRequestDenial.String(), last.Type)
	assert.Nil(t, last.Schedule)
}
