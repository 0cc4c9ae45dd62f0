package estimate

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valetudoapp/valetudo/internal/food"
	"github.com/valetudoapp/valetudo/internal/kvstore"
	"github.com/valetudoapp/valetudo/internal/normalize"
	"github.com/valetudoapp/valetudo/internal/scan"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
)

const apiKeyName = "generative-api-key"

var (
	// ErrNoApiKey means no key is stored and none was supplied; no
	// network call is made in that case.
	ErrNoApiKey   = errors.New("no generative api key")
	ErrEmptyPhoto = errors.New("empty photo")
)

type apiClient interface {
	Estimate(ctx context.Context, apiKey string, jpegImage []byte) (*Estimate, error)
}

type mealAdder interface {
	AddMealEntry(ctx context.Context, entry food.MealEntry) (*food.MealEntry, error)
}

// Service runs the photo estimation flow: resolve the per-account API
// key, call the model, and commit the estimate through the regular
// meal add path.
type Service struct {
	client  apiClient
	kv      kvstore.Store
	camera  scan.Camera
	meals   mealAdder
	metrics *metrics.Manager
}

func NewService(
	client apiClient,
	kv kvstore.Store,
	camera scan.Camera,
	meals mealAdder,
	metricsManager *metrics.Manager,
) *Service {
	return &Service{
		client:  client,
		kv:      kv,
		camera:  camera,
		meals:   meals,
		metrics: metricsManager,
	}
}

// SetApiKey persists the generative API key for reuse.
func (s *Service) SetApiKey(ctx context.Context, accountID int, apiKey string) error {
	apiKey = normalize.CleanText(apiKey, "")
	if apiKey == "" {
		return ErrNoApiKey
	}
	return s.kv.Set(ctx, kvstore.AccountKey(accountID, apiKeyName), apiKey)
}

func (s *Service) resolveApiKey(ctx context.Context, accountID int, supplied string) (string, error) {
	if supplied = normalize.CleanText(supplied, ""); supplied != "" {
		// a freshly supplied key is persisted for next time
		if err := s.SetApiKey(ctx, accountID, supplied); err != nil {
			log.Errorf("persist api key for account %d: %s", accountID, err)
		}
		return supplied, nil
	}

	stored, err := s.kv.Get(ctx, kvstore.AccountKey(accountID, apiKeyName))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return "", ErrNoApiKey
		}
		return "", err
	}
	return stored, nil
}

// EstimatePhoto estimates nutrition for an already captured JPEG.
func (s *Service) EstimatePhoto(ctx context.Context, accountID int, jpegImage []byte, suppliedKey string) (*Estimate, error) {
	if len(jpegImage) == 0 {
		return nil, ErrEmptyPhoto
	}

	apiKey, err := s.resolveApiKey(ctx, accountID, suppliedKey)
	if err != nil {
		return nil, err
	}

	estimate, err := s.client.Estimate(ctx, apiKey, jpegImage)
	if err != nil {
		s.metrics.CounterPhotoEstimates.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.CounterPhotoEstimates.WithLabelValues("ok").Inc()
	return estimate, nil
}

// CaptureAndEstimate grabs a single frame and closes the camera
// before the model round trip starts.
func (s *Service) CaptureAndEstimate(ctx context.Context, accountID int, suppliedKey string) (*Estimate, error) {
	frame, err := s.captureFrame(ctx)
	if err != nil {
		return nil, err
	}
	return s.EstimatePhoto(ctx, accountID, frame, suppliedKey)
}

func (s *Service) captureFrame(ctx context.Context) (scan.Frame, error) {
	stream, err := s.camera.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			log.Errorf("close frame stream after capture: %s", closeErr)
		}
	}()

	select {
	case frame, ok := <-stream.Frames():
		if !ok || len(frame) == 0 {
			return nil, ErrEmptyPhoto
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit logs an estimate as a meal entry. Photo estimates count as a
// user-confirmed manual add, not a barcode scan.
func (s *Service) Commit(ctx context.Context, accountID int, estimate Estimate, dateKey string) (*food.MealEntry, error) {
	if dateKey == "" {
		dateKey = normalize.DateKey(time.Now())
	}

	entry := food.MealEntry{
		AccountID:  accountID,
		Name:       normalize.CleanText(estimate.Name, normalize.FallbackMeal),
		Calories:   normalize.SafeInt(float64(estimate.Calories)),
		Protein:    normalize.SafeInt(float64(estimate.Protein)),
		Carbs:      normalize.SafeInt(float64(estimate.Carbs)),
		Fat:        normalize.SafeInt(float64(estimate.Fat)),
		Detail:     normalize.CleanText(estimate.Detail, ""),
		ConsumedOn: dateKey,
		Source:     food.SourceManual,
	}
	return s.meals.AddMealEntry(ctx, entry)
}
