package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "tp.plans.abc.status", Subject("abc"))
}

func TestNATSPublisherPublishStatus(t *testing.T) {
	fc := &fakeConn{}
	p := &NATSPublisher{nc: fc}
	at := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

	err := p.PublishStatus(context.Background(), StatusEvent{
		PlanID: "p1", OwnerID: "alice", Status: "error", ErrorMessage: "boom", At: at,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"tp.plans.p1.status"}, fc.subjects)
	var got StatusEvent
	require.NoError(t, json.Unmarshal(fc.payloads[0], &got))
	assert.Equal(t, "error", got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.True(t, got.At.Equal(at))

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNATSPublisherErrors(t *testing.T) {
	fc := &fakeConn{err: errors.New("connection closed")}
	p := &NATSPublisher{nc: fc}
	assert.Error(t, p.PublishStatus(context.Background(), StatusEvent{PlanID: "p1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&NATSPublisher{nc: &fakeConn{}}).PublishStatus(ctx, StatusEvent{PlanID: "p1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectNATSUnreachable(t *testing.T) {
	_, err := ConnectNATS("nats://127.0.0.1:1", nil)
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.PublishStatus(context.Background(), StatusEvent{}))
}
