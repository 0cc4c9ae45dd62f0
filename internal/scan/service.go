package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/valetudoapp/valetudo/internal/food"
	"github.com/valetudoapp/valetudo/internal/normalize"
	"github.com/valetudoapp/valetudo/internal/nutrition"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
)

var ErrEmptyBarcode = errors.New("empty barcode")

type mealAdder interface {
	AddMealEntry(ctx context.Context, entry food.MealEntry) (*food.MealEntry, error)
}

// Service owns one scan pipeline per account and the manual barcode
// entry path. Committed scans go through the same meal-entry add path
// as manual logging.
type Service struct {
	camera   Camera
	detector Detector
	lookup   productLookup
	meals    mealAdder
	metrics  *metrics.Manager

	mutex     sync.Mutex
	pipelines map[int]*Pipeline
}

func NewService(
	camera Camera,
	detector Detector,
	lookup productLookup,
	meals mealAdder,
	metricsManager *metrics.Manager,
) *Service {
	return &Service{
		camera:    camera,
		detector:  detector,
		lookup:    lookup,
		meals:     meals,
		metrics:   metricsManager,
		pipelines: map[int]*Pipeline{},
	}
}

func (s *Service) Pipeline(accountID int) *Pipeline {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	pipeline, ok := s.pipelines[accountID]
	if !ok {
		pipeline = NewPipeline(
			s.camera, s.detector, s.lookup,
			func(ctx context.Context, product nutrition.Product) error {
				_, err := s.Commit(ctx, accountID, product, 1, "")
				return err
			},
			s.metrics,
		)
		s.pipelines[accountID] = pipeline
	}
	return pipeline
}

func (s *Service) StartScan(ctx context.Context, accountID int) int {
	return s.Pipeline(accountID).Start(ctx)
}

func (s *Service) StopScan(accountID int) {
	s.Pipeline(accountID).Stop()
}

func (s *Service) ScanState(accountID int) Snapshot {
	return s.Pipeline(accountID).Snapshot()
}

// Shutdown stops all pipelines, releasing any open camera.
func (s *Service) Shutdown() {
	s.mutex.Lock()
	pipelines := make([]*Pipeline, 0, len(s.pipelines))
	for _, pipeline := range s.pipelines {
		pipelines = append(pipelines, pipeline)
	}
	s.mutex.Unlock()

	for _, pipeline := range pipelines {
		pipeline.Stop()
	}
}

// LookupManual resolves a typed-in barcode, bypassing the camera.
func (s *Service) LookupManual(ctx context.Context, code string) (*nutrition.Product, error) {
	code = normalize.CleanText(code, "")
	if code == "" {
		return nil, ErrEmptyBarcode
	}

	product, err := s.lookup.LookupBarcode(ctx, code)
	if err != nil {
		if errors.Is(err, nutrition.ErrProductNotFound) {
			s.metrics.CounterBarcodeLookups.WithLabelValues("not_found").Inc()
		} else {
			s.metrics.CounterBarcodeLookups.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	s.metrics.CounterBarcodeLookups.WithLabelValues("hit").Inc()
	return product, nil
}

// Commit logs a resolved product as a meal entry with source
// "barcode". Macros scale with servings.
func (s *Service) Commit(
	ctx context.Context,
	accountID int,
	product nutrition.Product,
	servings float64,
	dateKey string,
) (*food.MealEntry, error) {
	servings = normalize.PositiveServings(servings)
	if dateKey == "" {
		dateKey = normalize.DateKey(time.Now())
	}

	entry := food.MealEntry{
		AccountID:  accountID,
		Name:       normalize.CleanText(product.Name, "Scanned food"),
		Calories:   normalize.SafeInt(servings * float64(product.Calories)),
		Protein:    normalize.SafeInt(servings * float64(product.Protein)),
		Carbs:      normalize.SafeInt(servings * float64(product.Carbs)),
		Fat:        normalize.SafeInt(servings * float64(product.Fat)),
		Detail:     "Scanned food",
		ConsumedOn: dateKey,
		Source:     food.SourceBarcode,
		Barcode:    product.Barcode,
	}

	added, err := s.meals.AddMealEntry(ctx, entry)
	if err != nil {
		return nil, err
	}

	s.metrics.CounterBarcodeScans.Inc()
	log.Debugf("barcode %s committed as meal entry %d for account %d", product.Barcode, added.ID, accountID)
	return added, nil
}
