package services

import (
	"sync"

	"gorm.io/gorm"
)

// modelTrainer coalesces retrain requests: a training run triggered while one
// is already in flight joins the running one instead of starting another. The
// completion channel makes the finish observable without blocking callers.
type modelTrainer struct {
	mu      sync.Mutex
	running bool
	waiters []chan error
}

// ModelTrainer is the shared trainer used by the API and the startup path.
var ModelTrainer = &modelTrainer{}

// TrainAsync starts (or joins) a background training run. The returned
// channel receives the run's result exactly once.
func (t *modelTrainer) TrainAsync(db *gorm.DB) <-chan error {
	ch := make(chan error, 1)
	t.mu.Lock()
	t.waiters = append(t.waiters, ch)
	if !t.running {
		t.running = true
		go t.run(db)
	}
	t.mu.Unlock()
	return ch
}

func (t *modelTrainer) run(db *gorm.DB) {
	err := TrainAndSaveModel(db)

	t.mu.Lock()
	waiters := t.waiters
	t.waiters = nil
	t.running = false
	t.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

// EnsureModel makes a trained artifact available for prediction: the
// in-memory snapshot if present, otherwise the persisted artifact, otherwise
// one training run. Fails closed with ErrModelUnavailable rather than
// guessing a score.
func EnsureModel(db *gorm.DB) (*RiskModelArtifact, error) {
	if artifact := loadedModel(); artifact != nil {
		return artifact, nil
	}
	if err := LoadModelArtifact(); err == nil {
		return loadedModel(), nil
	}

	if err := <-ModelTrainer.TrainAsync(db); err != nil {
		return nil, ErrModelUnavailable
	}
	if artifact := loadedModel(); artifact != nil {
		return artifact, nil
	}
	return nil, ErrModelUnavailable
}
