package estimate

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetudoapp/valetudo/internal/events"
	"github.com/valetudoapp/valetudo/internal/food"
	"github.com/valetudoapp/valetudo/internal/kvstore"
	"github.com/valetudoapp/valetudo/internal/scan"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
)

type apiClientMock struct {
	estimate *Estimate
	err      error
	calls    int32
	lastKey  string
}

func (m *apiClientMock) Estimate(_ context.Context, apiKey string, _ []byte) (*Estimate, error) {
	atomic.AddInt32(&m.calls, 1)
	m.lastKey = apiKey
	return m.estimate, m.err
}

type frameStreamMock struct {
	frames     chan scan.Frame
	closeCount int32
}

func (s *frameStreamMock) Frames() <-chan scan.Frame { return s.frames }

func (s *frameStreamMock) Close() error {
	atomic.AddInt32(&s.closeCount, 1)
	return nil
}

type cameraMock struct {
	stream *frameStreamMock
	err    error
}

func (c *cameraMock) Open(context.Context) (scan.FrameStream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

func chickenBowlEstimate() *Estimate {
	return &Estimate{Name: "Chicken bowl", Calories: 420, Protein: 32, Carbs: 45, Fat: 14, Detail: "1 bowl"}
}

func newTestService(client apiClient, camera scan.Camera) (*Service, *food.Service, *metrics.Manager, *events.Bus[events.MealLogged]) {
	bus := events.NewBus[events.MealLogged]()
	foodService := food.NewService(food.NewMemoryRepo(), kvstore.NewMemoryStore(), bus)
	m := metrics.NewTestManager()
	if camera == nil {
		camera = scan.NoCamera{}
	}
	return NewService(client, kvstore.NewMemoryStore(), camera, foodService, m), foodService, m, bus
}

func TestService_EstimatePhotoRequiresKey(t *testing.T) {
	ctx := context.Background()
	client := &apiClientMock{estimate: chickenBowlEstimate()}
	service, _, _, bus := newTestService(client, nil)
	defer bus.Close()

	// no stored key and none supplied: no network call at all
	_, err := service.EstimatePhoto(ctx, 1, []byte("jpeg"), "")
	assert.ErrorIs(t, err, ErrNoApiKey)
	assert.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestService_EstimatePhotoPersistsSuppliedKey(t *testing.T) {
	ctx := context.Background()
	client := &apiClientMock{estimate: chickenBowlEstimate()}
	service, _, m, bus := newTestService(client, nil)
	defer bus.Close()

	estimate, err := service.EstimatePhoto(ctx, 1, []byte("jpeg"), "supplied-key")
	require.NoError(t, err)
	assert.Equal(t, "Chicken bowl", estimate.Name)
	assert.Equal(t, "supplied-key", client.lastKey)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterPhotoEstimates.WithLabelValues("ok")))

	// the key was persisted, next call runs without supplying it
	_, err = service.EstimatePhoto(ctx, 1, []byte("jpeg"), "")
	require.NoError(t, err)
	assert.Equal(t, "supplied-key", client.lastKey)
	assert.Equal(t, int32(2), atomic.LoadInt32(&client.calls))
}

func TestService_EstimatePhotoClientFailure(t *testing.T) {
	ctx := context.Background()
	client := &apiClientMock{err: ErrEstimateFailed}
	service, _, m, bus := newTestService(client, nil)
	defer bus.Close()

	require.NoError(t, service.SetApiKey(ctx, 1, "stored-key"))

	_, err := service.EstimatePhoto(ctx, 1, []byte("jpeg"), "")
	assert.ErrorIs(t, err, ErrEstimateFailed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterPhotoEstimates.WithLabelValues("error")))
}

func TestService_CaptureAndEstimate(t *testing.T) {
	ctx := context.Background()
	stream := &frameStreamMock{frames: make(chan scan.Frame, 1)}
	stream.frames <- scan.Frame("jpeg-bytes")
	camera := &cameraMock{stream: stream}

	client := &apiClientMock{estimate: chickenBowlEstimate()}
	service, _, _, bus := newTestService(client, camera)
	defer bus.Close()

	estimate, err := service.CaptureAndEstimate(ctx, 1, "supplied-key")
	require.NoError(t, err)
	assert.Equal(t, "Chicken bowl", estimate.Name)

	// the camera is released right after the capture
	assert.Equal(t, int32(1), atomic.LoadInt32(&stream.closeCount))
}

func TestService_CaptureAndEstimateCameraError(t *testing.T) {
	ctx := context.Background()
	client := &apiClientMock{estimate: chickenBowlEstimate()}
	service, _, _, bus := newTestService(client, &cameraMock{err: scan.ErrCameraUnavailable})
	defer bus.Close()

	_, err := service.CaptureAndEstimate(ctx, 1, "supplied-key")
	assert.ErrorIs(t, err, scan.ErrCameraUnavailable)
	assert.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestService_Commit(t *testing.T) {
	ctx := context.Background()
	client := &apiClientMock{estimate: chickenBowlEstimate()}
	service, foodService, _, bus := newTestService(client, nil)
	defer bus.Close()

	added, err := service.Commit(ctx, 1, *chickenBowlEstimate(), "2024-03-07")
	require.NoError(t, err)
	assert.Equal(t, "Chicken bowl", added.Name)
	assert.Equal(t, 420, added.Calories)
	assert.Equal(t, food.SourceManual, added.Source)
	assert.Empty(t, added.Barcode)

	meals, err := foodService.ListMealEntries(ctx, 1, "2024-03-07")
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Equal(t, "1 bowl", meals[0].Detail)
}

func TestService_SetApiKeyEmpty(t *testing.T) {
	client := &apiClientMock{}
	service, _, _, bus := newTestService(client, nil)
	defer bus.Close()

	err := service.SetApiKey(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, ErrNoApiKey)
}
