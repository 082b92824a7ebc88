package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDigest(t *testing.T) {
	assert.Empty(t, Digest(nil))
	d := Digest([]byte("hello"))
	assert.Len(t, d, 64)
	assert.Equal(t, d, Digest([]byte("hello")))
	assert.NotEqual(t, d, Digest([]byte("hellp")))
}

func TestRecordAndSummary(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	session, err := StartSession(ctx, db, "embedder", "abc123")
	require.NoError(t, err)
	rec := NewRecorder(db, session)

	hub := events.NewHub(16)
	evs := []events.Event{
		hub.Publish(events.TypeInbound, events.Traffic{Channel: "app/echo", Direction: events.DirInbound, Token: "t1", Bytes: 3, Payload: []byte("abc")}),
		hub.Publish(events.TypeResponse, events.Traffic{Channel: "app/echo", Direction: events.DirResponse, Token: "t1", Bytes: 3, Payload: []byte("abc")}),
		hub.Publish(events.TypeOutbound, events.Traffic{Channel: "app/textinput", Direction: events.DirOutbound, Bytes: 10, Payload: []byte("0123456789")}),
		hub.Publish(events.TypeMiss, events.Traffic{Channel: "app/none", Direction: events.DirInbound, Token: "t2"}),
		hub.Publish("something.else", map[string]string{"x": "y"}),
	}
	for _, ev := range evs {
		require.NoError(t, rec.Record(ctx, ev))
	}
	assert.EqualValues(t, 4, rec.Written())

	sum, err := Summary(ctx, db, session)
	require.NoError(t, err)
	require.Len(t, sum, 3)

	assert.Equal(t, "app/echo", sum[0].Channel)
	assert.EqualValues(t, 1, sum[0].Inbound)
	assert.EqualValues(t, 1, sum[0].Responses)
	assert.EqualValues(t, 3, sum[0].BytesIn)
	assert.EqualValues(t, 3, sum[0].BytesOut)
	assert.False(t, sum[0].FirstAt.IsZero())

	assert.Equal(t, "app/none", sum[1].Channel)
	assert.EqualValues(t, 1, sum[1].Misses)

	assert.Equal(t, "app/textinput", sum[2].Channel)
	assert.EqualValues(t, 1, sum[2].Outbound)
	assert.EqualValues(t, 10, sum[2].BytesOut)

	recent, err := Recent(ctx, db, session, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, KindMiss, recent[0].Kind)
	assert.Empty(t, recent[0].Digest)
	assert.Equal(t, KindOutbound, recent[1].Kind)
	assert.Equal(t, Digest([]byte("0123456789")), recent[1].Digest)
}

func TestSummaryAcrossSessions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	hub := events.NewHub(16)

	for i := 0; i < 2; i++ {
		session, err := StartSession(ctx, db, "embedder", "")
		require.NoError(t, err)
		rec := NewRecorder(db, session)
		ev := hub.Publish(events.TypeInbound, events.Traffic{Channel: "app/echo", Direction: events.DirInbound, Payload: []byte("x")})
		require.NoError(t, rec.Record(ctx, ev))
	}

	all, err := Summary(ctx, db, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.EqualValues(t, 2, all[0].Inbound)
}

func TestRecorderStartStop(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	session, err := StartSession(ctx, db, "embedder", "digest")
	require.NoError(t, err)

	hub := events.NewHub(16)
	rec := NewRecorder(db, session)
	rec.Start(hub)
	rec.Start(hub) // second start is a no-op
	assert.Equal(t, 1, hub.Subscribers())

	hub.PublishTraffic(events.TypeInbound, events.Traffic{Channel: "app/echo", Direction: events.DirInbound, Payload: []byte("hi")})
	hub.PublishTraffic(events.TypeLeak, events.Traffic{Channel: "app/echo", Token: "t9", Reason: "handle dropped"})

	require.Eventually(t, func() bool { return rec.Written() == 2 }, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, rec.Stop(stopCtx))
	assert.Equal(t, 0, hub.Subscribers())

	sessions, err := Sessions(ctx, db)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session, sessions[0].ID)
	assert.Equal(t, "digest", sessions[0].ConfigDigest)
	require.NotNil(t, sessions[0].StoppedAt)

	recent, err := Recent(ctx, db, session, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, KindLeak, recent[0].Kind)
	assert.Equal(t, "handle dropped", recent[0].Detail)
}

func TestRecorderStopRightAfterStart(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	session, err := StartSession(ctx, db, "embedder", "")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		rec := NewRecorder(db, session)
		rec.Start(events.NewHub(0))
		require.NoError(t, rec.Stop(ctx))
	}
}

func TestRecorderKeepsBurst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	session, err := StartSession(ctx, db, "embedder", "")
	require.NoError(t, err)

	hub := events.NewHub(0)
	rec := NewRecorder(db, session)
	rec.Start(hub)

	const n = 1000
	for i := 0; i < n; i++ {
		hub.PublishTraffic(events.TypeInbound, events.Traffic{Channel: "app/echo", Direction: events.DirInbound, Payload: []byte("x")})
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, rec.Stop(stopCtx))
	assert.EqualValues(t, n, rec.Written())
	assert.Zero(t, rec.Failed())

	sum, err := Summary(ctx, db, session)
	require.NoError(t, err)
	require.Len(t, sum, 1)
	assert.EqualValues(t, n, sum[0].Inbound)
}

func TestRecorderBatchSkipsBadRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	session, err := StartSession(ctx, db, "embedder", "")
	require.NoError(t, err)

	rec := NewRecorder(db, session)
	hub := events.NewHub(4)
	good := hub.Publish(events.TypeInbound, events.Traffic{Channel: "app/echo"})
	bad := events.Event{ID: 99, Type: events.TypeInbound, Data: []byte("not json")}
	rec.writeBatch(ctx, []events.Event{good, bad, hub.Publish("other", nil)})

	assert.EqualValues(t, 1, rec.Written())
	assert.EqualValues(t, 1, rec.Failed())
}

func TestRecordUnknownSession(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, "missing")
	hub := events.NewHub(4)
	ev := hub.Publish(events.TypeInbound, events.Traffic{Channel: "app/echo"})

	err := rec.Record(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert traffic")
}
