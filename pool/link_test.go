package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSendAndTryRecv(t *testing.T) {
	l := newLink(0)
	assert.Equal(t, DefaultBufferSize, cap(l.ch))

	_, ok, gone := l.tryRecv()
	assert.False(t, ok)
	assert.False(t, gone)

	require.NoError(t, l.send(Assign{Candidate: 3}))
	msg, ok, gone := l.tryRecv()
	require.True(t, ok)
	assert.False(t, gone)
	assert.Equal(t, Assign{Candidate: 3}, msg)
}

func TestLinkSendAfterClose(t *testing.T) {
	l := newLink(4)
	l.close()
	l.close()

	err := l.send(Stop{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSendFailure))
}

func TestLinkHangupDrainsFirst(t *testing.T) {
	l := newLink(4)
	require.NoError(t, l.send(NotFound{WorkerID: 1, Candidate: 9}))
	l.hangUp()
	l.hangUp()

	msg, ok, gone := l.tryRecv()
	require.True(t, ok)
	assert.False(t, gone)
	assert.Equal(t, NotFound{WorkerID: 1, Candidate: 9}, msg)

	_, ok, gone = l.tryRecv()
	assert.False(t, ok)
	assert.True(t, gone)
}

func TestEndpointRelease(t *testing.T) {
	e := &endpoint{id: 2, commands: newLink(1), reports: newLink(1)}
	e.release()

	assert.ErrorIs(t, e.commands.send(Stop{}), ErrSendFailure)
	_, _, gone := e.reports.tryRecv()
	assert.True(t, gone)
}
