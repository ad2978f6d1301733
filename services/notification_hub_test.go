package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	messages   []NotificationPayload
	failWrites bool
	closed     bool
}

func (c *stubConn) WriteJSON(v interface{}) error {
	if c.failWrites {
		return errors.New("write on dead connection")
	}
	c.messages = append(c.messages, v.(NotificationPayload))
	return nil
}

func (c *stubConn) Close() error {
	c.closed = true
	return nil
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewNotificationHub()
	conn := &stubConn{}

	connID := hub.Register(7, conn)
	require.NotEmpty(t, connID)
	assert.Equal(t, 1, hub.ConnectedUsers())

	hub.Unregister(7, connID)
	assert.Equal(t, 0, hub.ConnectedUsers())
}

func TestHubSendPersonalMessage(t *testing.T) {
	hub := NewNotificationHub()
	target := &stubConn{}
	bystander := &stubConn{}
	hub.Register(7, target)
	hub.Register(8, bystander)

	hub.SendPersonalMessage("Your application #1 has been approved.", 7)

	require.Len(t, target.messages, 1)
	assert.Equal(t, "Your application #1 has been approved.", target.messages[0].Message)
	assert.Empty(t, bystander.messages)
}

func TestHubPersonalMessageToAbsentUserIsDropped(t *testing.T) {
	hub := NewNotificationHub()
	// No queueing, no panic: the message just vanishes.
	hub.SendPersonalMessage("anyone there?", 42)
	assert.Equal(t, 0, hub.ConnectedUsers())
}

func TestHubMultipleConnectionsPerUser(t *testing.T) {
	hub := NewNotificationHub()
	tabOne := &stubConn{}
	tabTwo := &stubConn{}
	hub.Register(7, tabOne)
	connID := hub.Register(7, tabTwo)

	hub.SendPersonalMessage("hello", 7)
	assert.Len(t, tabOne.messages, 1)
	assert.Len(t, tabTwo.messages, 1)

	// Closing one tab keeps the user connected through the other.
	hub.Unregister(7, connID)
	assert.Equal(t, 1, hub.ConnectedUsers())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewNotificationHub()
	first := &stubConn{}
	second := &stubConn{}
	hub.Register(1, first)
	hub.Register(2, second)

	hub.Broadcast("Admin has initiated a manual model re-training.")

	require.Len(t, first.messages, 1)
	require.Len(t, second.messages, 1)
	assert.Equal(t, first.messages[0], second.messages[0])
}

func TestHubEvictsDeadConnections(t *testing.T) {
	hub := NewNotificationHub()
	dead := &stubConn{failWrites: true}
	alive := &stubConn{}
	hub.Register(1, dead)
	hub.Register(2, alive)

	hub.Broadcast("first")
	assert.True(t, dead.closed)
	assert.Equal(t, 1, hub.ConnectedUsers())

	hub.Broadcast("second")
	assert.Len(t, alive.messages, 2)
}

// serialConn records overlapping WriteJSON calls; websocket connections
// tolerate only one writer at a time.
type serialConn struct {
	active   int32
	overlaps int32
	writes   int32
}

func (c *serialConn) WriteJSON(v interface{}) error {
	if atomic.AddInt32(&c.active, 1) > 1 {
		atomic.AddInt32(&c.overlaps, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&c.writes, 1)
	atomic.AddInt32(&c.active, -1)
	return nil
}

func (c *serialConn) Close() error { return nil }

func TestHubSerializesConcurrentWritesToOneConnection(t *testing.T) {
	hub := NewNotificationHub()
	conn := &serialConn{}
	hub.Register(7, conn)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Broadcast("documents verified")
		}()
		go func() {
			defer wg.Done()
			hub.SendPersonalMessage("application approved", 7)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&conn.overlaps))
	assert.Equal(t, int32(16), atomic.LoadInt32(&conn.writes))
}

func TestHubEvictsDeadConnectionOnPersonalMessage(t *testing.T) {
	hub := NewNotificationHub()
	dead := &stubConn{failWrites: true}
	hub.Register(7, dead)

	hub.SendPersonalMessage("hello", 7)
	assert.True(t, dead.closed)
	assert.Equal(t, 0, hub.ConnectedUsers())
}
