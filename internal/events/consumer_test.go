package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStreamReader struct {
	mock.Mock
}

func (m *MockStreamReader) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	return redis.NewStatusResult("OK", args.Error(0))
}

func (m *MockStreamReader) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	streams, _ := args.Get(0).([]redis.XStream)
	return redis.NewXStreamSliceCmdResult(streams, args.Error(1))
}

func (m *MockStreamReader) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	return redis.NewIntResult(int64(len(ids)), args.Error(0))
}

func eventMessage(t *testing.T, id string) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(NewScrapeCompletedPayload(testResultSet()))
	require.NoError(t, err)
	return redis.XMessage{
		ID: id,
		Values: map[string]interface{}{
			"event_type": string(EventTypeScrapeCompleted),
			"data":       string(data),
		},
	}
}

func TestConsumerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockStreamReader)
	client.On("XGroupCreateMkStream", mock.Anything, "stream:runs", "watchers", "$").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))

	batch := []redis.XStream{{
		Stream: "stream:runs",
		Messages: []redis.XMessage{
			eventMessage(t, "1-0"),
			{ID: "2-0", Values: map[string]interface{}{"event_type": "OTHER"}},
			{ID: "3-0", Values: map[string]interface{}{"event_type": string(EventTypeScrapeCompleted), "data": "{"}},
		},
	}}
	client.On("XReadGroup", mock.Anything, mock.Anything).Return(batch, nil).Once()
	client.On("XReadGroup", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, redis.Nil)
	client.On("XAck", mock.Anything, "stream:runs", "watchers", []string{"1-0"}).Return(nil)
	client.On("XAck", mock.Anything, "stream:runs", "watchers", []string{"2-0"}).Return(nil)

	var received []*ScrapeCompletedPayload
	consumer := NewConsumer(client, "stream:runs", "watchers", "test", slog.Default())
	err := consumer.Run(ctx, func(_ context.Context, p *ScrapeCompletedPayload) error {
		received = append(received, p)
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, received, 1)
	assert.Equal(t, "leche", received[0].Query)
	require.NotNil(t, received[0].Cheapest)
	assert.Equal(t, "Leche entera", received[0].Cheapest.Name)

	client.AssertExpectations(t)
	client.AssertNotCalled(t, "XAck", mock.Anything, "stream:runs", "watchers", []string{"3-0"})
}

func TestConsumerHandlerErrorLeavesMessagePending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockStreamReader)
	client.On("XGroupCreateMkStream", mock.Anything, "s", "g", "$").Return(nil)
	client.On("XReadGroup", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return([]redis.XStream{{Stream: "s", Messages: []redis.XMessage{eventMessage(t, "7-0")}}}, nil).
		Once()

	consumer := NewConsumer(client, "s", "g", "test", slog.Default())
	err := consumer.Run(ctx, func(context.Context, *ScrapeCompletedPayload) error {
		return errors.New("downstream unavailable")
	})

	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumerGroupCreateFailure(t *testing.T) {
	client := new(MockStreamReader)
	client.On("XGroupCreateMkStream", mock.Anything, "s", "g", "$").Return(errors.New("connection refused"))

	consumer := NewConsumer(client, "s", "g", "test", slog.Default())
	err := consumer.Run(context.Background(), func(context.Context, *ScrapeCompletedPayload) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create consumer group")
}

func TestDecodeMessage(t *testing.T) {
	payload, err := DecodeMessage(eventMessage(t, "1-0"))
	require.NoError(t, err)
	assert.Equal(t, 2, payload.Products)

	_, err = DecodeMessage(redis.XMessage{ID: "1-1", Values: map[string]interface{}{}})
	assert.ErrorIs(t, err, ErrMissingData)
}
