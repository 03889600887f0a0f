package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventList_SortIsStable(t *testing.T) {
	var l EventList
	l.Push(&NoteEvent{Head: EventHeader{Time: 40}, Key: 1})
	l.Push(&ParamValueEvent{Head: EventHeader{Time: 0}, ParamID: 1})
	l.Push(&NoteEvent{Head: EventHeader{Time: 12}, Key: 2})
	l.Push(&ParamValueEvent{Head: EventHeader{Time: 0}, ParamID: 2})
	assert.False(t, l.Sorted())

	l.Sort()
	assert.True(t, l.Sorted())
	assert.Equal(t, uint32(1), l.Events[0].(*ParamValueEvent).ParamID)
	assert.Equal(t, uint32(2), l.Events[1].(*ParamValueEvent).ParamID)
	assert.Equal(t, int16(2), l.Events[2].(*NoteEvent).Key)
	assert.Equal(t, int16(1), l.Events[3].(*NoteEvent).Key)
}
