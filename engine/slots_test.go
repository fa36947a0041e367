package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func TestSlotTableConversationExclusivity(t *testing.T) {
	s := newSlotTable(10, 1)

	release, cerr := s.acquire("conv-1")
	require.Nil(t, cerr)

	_, cerr = s.acquire("conv-1")
	require.NotNil(t, cerr)
	assert.Equal(t, core.CodeConversationBusy, cerr.Code)

	// Other conversations are unaffected.
	release2, cerr := s.acquire("conv-2")
	require.Nil(t, cerr)

	release()
	release2()

	// The conversation frees up once its turn released.
	release3, cerr := s.acquire("conv-1")
	require.Nil(t, cerr)
	release3()
}

func TestSlotTableGlobalCap(t *testing.T) {
	s := newSlotTable(2, 1)

	r1, cerr := s.acquire("conv-1")
	require.Nil(t, cerr)
	r2, cerr := s.acquire("conv-2")
	require.Nil(t, cerr)

	_, cerr = s.acquire("conv-3")
	require.NotNil(t, cerr)
	assert.Equal(t, core.CodeMaxActiveStreamsExceeded, cerr.Code)

	r1()
	r2()
	assert.Equal(t, 0, s.activeStreams())
}

func TestSlotTableReleaseIsIdempotent(t *testing.T) {
	s := newSlotTable(5, 1)

	release, cerr := s.acquire("conv-1")
	require.Nil(t, cerr)
	assert.Equal(t, 1, s.activeStreams())

	release()
	release()
	release()

	assert.Equal(t, 0, s.activeStreams())

	// Counters never went negative: the full capacity is still usable.
	var releases []func()
	for i := 0; i < 5; i++ {
		r, cerr := s.acquire(string(rune('a' + i)))
		require.Nil(t, cerr)
		releases = append(releases, r)
	}
	_, cerr = s.acquire("overflow")
	assert.NotNil(t, cerr)

	for _, r := range releases {
		r()
	}
}

func TestSlotTablePerConversationCapAboveOne(t *testing.T) {
	s := newSlotTable(10, 2)

	r1, cerr := s.acquire("conv-1")
	require.Nil(t, cerr)
	r2, cerr := s.acquire("conv-1")
	require.Nil(t, cerr)

	_, cerr = s.acquire("conv-1")
	require.NotNil(t, cerr)
	assert.Equal(t, core.CodeConversationBusy, cerr.Code)

	r1()
	r2()
}
