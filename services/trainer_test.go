package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainAsyncDeliversResult(t *testing.T) {
	resetModelState(t, filepath.Join("testdata", "baseline_small.csv"))
	db := openTestDB(t)

	require.NoError(t, <-ModelTrainer.TrainAsync(db))
	assert.NotNil(t, loadedModel())
}

func TestTrainAsyncEveryCallerIsAnswered(t *testing.T) {
	resetModelState(t, filepath.Join("testdata", "baseline_small.csv"))
	db := openTestDB(t)

	first := ModelTrainer.TrainAsync(db)
	second := ModelTrainer.TrainAsync(db)

	assert.NoError(t, <-first)
	assert.NoError(t, <-second)
}

func TestTrainAsyncReportsFailure(t *testing.T) {
	resetModelState(t, filepath.Join("testdata", "does_not_exist.csv"))
	db := openTestDB(t)

	assert.Error(t, <-ModelTrainer.TrainAsync(db))
	assert.Nil(t, loadedModel())
}

func TestEnsureModelFallsBackToDiskArtifact(t *testing.T) {
	resetModelState(t, filepath.Join("testdata", "baseline_small.csv"))
	db := openTestDB(t)
	require.NoError(t, TrainAndSaveModel(db))

	// Clear the in-memory snapshot and break the training path: only the
	// persisted artifact can satisfy this call.
	setModel(nil)
	t.Setenv("TRAINING_DATA_PATH", filepath.Join("testdata", "does_not_exist.csv"))

	artifact, err := EnsureModel(db)
	require.NoError(t, err)
	assert.NotNil(t, artifact)
}

func TestEnsureModelTrainsWhenNothingPersisted(t *testing.T) {
	resetModelState(t, filepath.Join("testdata", "baseline_small.csv"))
	db := openTestDB(t)

	artifact, err := EnsureModel(db)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Len(t, artifact.Forest.Trees, forestSize)
}
