package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/pkg/models"
)

var (
	t0   = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	pair = models.LanguageContext(1, 2, "A1")
)

type brokenSink struct{}

func (brokenSink) InsertLearningEvent(context.Context, models.LearningEvent) error {
	return errors.New("db locked")
}

func (brokenSink) UpsertBoxMove(context.Context, models.BoxMove) error {
	return errors.New("db locked")
}

func TestRecorderStoresAndCounts(t *testing.T) {
	db, err := database.ConnectMemory()
	require.NoError(t, err)
	defer db.Close()
	repo := database.NewAnalyticsRepository(db)
	metrics := NewMetrics(prometheus.NewRegistry())
	logger, _ := test.NewNullLogger()
	r := NewRecorder(repo, metrics, logger)
	ctx := context.Background()

	require.NoError(t, r.LogLearningEvent(ctx, models.LearningEvent{ItemID: 1, Context: pair, Box: models.BoxOne, Result: models.ResultOK, Duration: 2 * time.Second, At: t0}))
	require.NoError(t, r.LogLearningEvent(ctx, models.LearningEvent{ItemID: 2, Context: pair, Box: models.BoxOne, Result: models.ResultWrong, At: t0}))
	require.NoError(t, r.LogBoxMove(ctx, models.BoxMove{ItemID: 1, Context: pair, From: models.BoxFive, At: t0}))
	r.Mastered(1)
	r.Graduated(models.LearningItem{ID: 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Answers.WithLabelValues("boxOne", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Answers.WithLabelValues("boxOne", "wrong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Moves.WithLabelValues("boxFive", "learned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Mastered))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Graduated))

	counts, err := repo.CountResults(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, database.ResultCounts{OK: 1, Wrong: 1}, counts)
	mv, err := repo.GetBoxMove(ctx, 1, pair)
	require.NoError(t, err)
	require.NotNil(t, mv)
	assert.Equal(t, 1, mv.MoveCount)
}

func TestRecorderSinkErrors(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewRecorder(brokenSink{}, metrics, nil)
	ctx := context.Background()

	assert.Error(t, r.LogLearningEvent(ctx, models.LearningEvent{ItemID: 1, Context: pair, Box: models.BoxTwo, Result: models.ResultOK}))
	assert.Error(t, r.LogBoxMove(ctx, models.BoxMove{ItemID: 1, Context: pair, From: models.BoxTwo, To: models.BoxThree}))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SinkErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Answers.WithLabelValues("boxTwo", "ok")))
}

func TestRecorderWithoutSink(t *testing.T) {
	r := NewRecorder(nil, nil, nil)
	assert.NoError(t, r.LogLearningEvent(context.Background(), models.LearningEvent{}))
	assert.NoError(t, r.LogBoxMove(context.Background(), models.BoxMove{}))
}
