package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoutesByTenant(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Subscribe("t1")
	b := hub.Subscribe("t2")
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), New(TypeTenantSynced, "t1", nil)))

	select {
	case e := <-a.C:
		assert.Equal(t, TypeTenantSynced, e.Type)
		assert.NotEmpty(t, e.ID)
	default:
		t.Fatal("expected event for t1")
	}
	assert.Empty(t, b.C)

	a.Close()
	a.Close()
	assert.Zero(t, hub.Subscribers("t1"))
	_, open := <-a.C
	assert.False(t, open)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(nil)
	s := hub.Subscribe("t1")
	defer s.Close()

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), New(TypeRecordUpserted, "t1", nil)))
	}
	assert.Len(t, s.C, subscriberBuffer)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	hub := NewHub(nil)
	s := hub.Subscribe("t1")
	defer s.Close()
	boom := errors.New("broker down")

	err := Multi{hub, nil, failingPublisher{boom}}.Publish(context.Background(), New(TypeTenantLinked, "t1", nil))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.C, 1)
}
