package notify

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/zone"
)

type captured struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	sent []captured
	fail bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.fail {
		return errors.New("нет соединения")
	}
	f.sent = append(f.sent, captured{subject: subject, data: data})
	return nil
}

func newStore(t *testing.T) *zone.Store {
	t.Helper()
	s := zone.NewStore("overworld", nil, nil)
	require.NoError(t, s.Initialize(16, vec.Vec2{}, 0))
	return s
}

func TestNATSPublisher_PublishesStoreEvents(t *testing.T) {
	fake := &fakePublisher{}
	p := NewNATSPublisher(fake, "", "node-1")
	store := newStore(t)
	p.Attach(store)

	reg := &zone.Registration{
		Locator:         store.LocatorFor(vec.Vec2{X: 16, Y: 0}, vec.Vec2{}, true),
		SourceAssetID:   "forest",
		PlacementOffset: vec.Vec2{X: 16, Y: 0},
		Rotation:        zone.Rotate270,
		Immortal:        true,
	}
	require.NoError(t, store.Add(reg))
	require.NoError(t, store.Remove(reg))

	require.Len(t, fake.sent, 2)
	assert.Equal(t, "chunkstream.zones.overworld.added", fake.sent[0].subject)
	assert.Equal(t, "chunkstream.zones.overworld.removed", fake.sent[1].subject)

	var msg ZoneMessage
	require.NoError(t, json.Unmarshal(fake.sent[0].data, &msg))
	assert.Equal(t, "added", msg.Event)
	assert.Equal(t, uint64(1), msg.Index)
	assert.Equal(t, 270, msg.Rotation)
	assert.True(t, msg.Immortal)
	assert.Equal(t, "node-1", msg.NodeID)

	published, failed := p.Stats()
	assert.Equal(t, int64(2), published)
	assert.Zero(t, failed)

	require.NoError(t, p.Close())
	require.NoError(t, store.Add(reg))
	assert.Len(t, fake.sent, 2, "после Close уведомления не пересылаются")
}

func TestNATSPublisher_CountsFailures(t *testing.T) {
	p := NewNATSPublisher(&fakePublisher{fail: true}, "zones", "")
	store := newStore(t)
	p.Attach(store)

	require.NoError(t, store.Add(&zone.Registration{Locator: store.LocatorFor(vec.Vec2{}, vec.Vec2{}, true)}))
	_, failed := p.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestNATSPublisher_LiveServer(t *testing.T) {
	url := os.Getenv("STREAMER_TEST_NATS")
	if url == "" {
		t.Skip("STREAMER_TEST_NATS не задан, пропускаем тест NATS")
	}

	p, err := Connect(&Config{URL: url, Subject: "chunkstream.test"})
	require.NoError(t, err)
	defer p.Close()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync("chunkstream.test.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	store := newStore(t)
	p.Attach(store)
	require.NoError(t, store.Add(&zone.Registration{Locator: store.LocatorFor(vec.Vec2{}, vec.Vec2{}, true), SourceAssetID: "x"}))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "chunkstream.test.overworld.added", msg.Subject)
}
