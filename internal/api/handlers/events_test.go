package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilhat/hatscore/internal/events"
	"github.com/tinfoilhat/hatscore/internal/sampler"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

func TestGetRecentEvents(t *testing.T) {
	buf := events.NewBuffer(10)
	buf.Publish(events.New(events.TypeProgress, models.PassBaseline, nil))
	buf.Publish(events.New(events.TypeCompleted, models.PassBaseline, nil))

	handler := NewEventsHandler(buf)

	resp, err := handler.GetRecentEvents(context.Background(), &RecentEventsRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Body.Events, 1)
	assert.Equal(t, events.TypeCompleted, resp.Body.Events[0].Type)

	resp, err = handler.GetRecentEvents(context.Background(), &RecentEventsRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Body.Events, 2)
}

type fakeProber struct {
	info sampler.DeviceInfo
	err  error
}

func (f fakeProber) Probe(context.Context) (sampler.DeviceInfo, error) { return f.info, f.err }

func TestHealth(t *testing.T) {
	resp, err := NewHealthHandler(nil).Health(context.Background(), &struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Body.Status)
	assert.Nil(t, resp.Body.Receiver)

	resp, err = NewHealthHandler(fakeProber{info: sampler.DeviceInfo{Connected: true, Serial: "a06063c8", Firmware: "2024.02.1"}}).
		Health(context.Background(), &struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Body.Status)
	assert.True(t, resp.Body.Receiver.Connected)
	assert.Equal(t, "a06063c8", resp.Body.Receiver.Serial)

	resp, err = NewHealthHandler(fakeProber{err: sampler.ErrDeviceNotFound}).Health(context.Background(), &struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", resp.Body.Status)
	assert.False(t, resp.Body.Receiver.Connected)
	assert.NotEmpty(t, resp.Body.Receiver.Error)
}
