package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/domain"
)

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown(context.Background())
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.EventChan:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case e := <-c.EventChan:
		t.Fatalf("unexpected %s event", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_NotificationAudience(t *testing.T) {
	m := startManager(t)

	guest, err := m.Connect("", false)
	require.NoError(t, err)
	user, err := m.Connect("usr-1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewNotificationEvent(&domain.Notification{Message: "members only", Audience: domain.AudienceUsers}))
	assert.Equal(t, EventNotificationBroadcast, receive(t, user).Type)
	assertNothing(t, guest)

	m.Emit(NewNotificationEvent(&domain.Notification{Message: "hello all", Audience: domain.AudienceAll}))
	assert.Equal(t, EventNotificationBroadcast, receive(t, guest).Type)
	assert.Equal(t, EventNotificationBroadcast, receive(t, user).Type)
}

func TestManager_AdminOnlyEvents(t *testing.T) {
	m := startManager(t)

	user, err := m.Connect("usr-1", false)
	require.NoError(t, err)
	admin, err := m.Connect("usr-2", true)
	require.NoError(t, err)

	m.Emit(NewImportCompletedEvent(ImportCompletedEventData{RunID: "run-1", Imported: 2}))
	got := receive(t, admin)
	assert.Equal(t, EventImportCompleted, got.Type)
	assert.Equal(t, "run-1", got.Data.(ImportCompletedEventData).RunID)
	assertNothing(t, user)

	// The type alone is enough to keep it from non-admins.
	m.Emit(Event{Type: EventUserRegistered})
	receive(t, admin)
	assertNothing(t, user)
}

func TestManager_EmitToUser(t *testing.T) {
	m := startManager(t)

	one, err := m.Connect("usr-1", false)
	require.NoError(t, err)
	two, err := m.Connect("usr-2", false)
	require.NoError(t, err)

	m.EmitToUser("usr-2", Event{Type: EventNotificationBroadcast})
	receive(t, two)
	assertNothing(t, one)
}

func TestManager_Heartbeat(t *testing.T) {
	m := NewManager(nil)
	m.SetHeartbeatInterval(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("", false)
	require.NoError(t, err)
	assert.Equal(t, EventHeartbeat, receive(t, c).Type)
}

func TestManager_DisconnectAndShutdown(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	c, err := m.Connect("usr-1", false)
	require.NoError(t, err)
	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	<-c.Done
	assert.Zero(t, m.ClientCount())

	other, err := m.Connect("usr-1", false)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))
	<-other.Done

	// Emits after shutdown are dropped without panicking.
	m.Emit(NewHeartbeatEvent())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_IgnoresForeignValues(t *testing.T) {
	m := startManager(t)
	c, err := m.Connect("", false)
	require.NoError(t, err)

	m.Emit("not an event")
	assertNothing(t, c)
}
