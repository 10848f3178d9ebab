package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/strobe/pkg/events"
)

func TestNewBaseEvent(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, loc)

	base := events.NewBaseEvent(events.RunFiredEvent, "s1", now)

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, events.RunFiredEvent, base.Type)
	assert.Equal(t, "s1", base.ScheduleID)
	assert.NotNil(t, base.Metadata)

	// The envelope carries the caller's clock reading, not a second wall
	// read, normalized to UTC.
	assert.Equal(t, time.UTC, base.Timestamp.Location())
	assert.True(t, base.Timestamp.Equal(now))
}
