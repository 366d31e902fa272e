// Package analytics records answers and box transitions to the relational
// store and exposes them as Prometheus metrics.
package analytics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/example/boxtrainer/pkg/models"
)

// Sink persists analytics rows. database.AnalyticsRepository implements it.
type Sink interface {
	InsertLearningEvent(ctx context.Context, ev models.LearningEvent) error
	UpsertBoxMove(ctx context.Context, mv models.BoxMove) error
}

// Metrics are the counters the recorder maintains.
type Metrics struct {
	Answers        *prometheus.CounterVec
	AnswerDuration *prometheus.HistogramVec
	Moves          *prometheus.CounterVec
	Mastered       prometheus.Counter
	Graduated      prometheus.Counter
	SinkErrors     prometheus.Counter
}

// NewMetrics registers the metrics with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxtrainer",
			Name:      "answers_total",
			Help:      "Confirmed answers by box and result.",
		}, []string{"box", "result"}),
		AnswerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "boxtrainer",
			Name:      "answer_duration_seconds",
			Help:      "Time from showing an item to confirming the answer.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80},
		}, []string{"box"}),
		Moves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxtrainer",
			Name:      "box_moves_total",
			Help:      "Item transitions between boxes.",
		}, []string{"from", "to"}),
		Mastered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "boxtrainer",
			Name:      "items_mastered_total",
			Help:      "Items answered correctly in the top box for the first time.",
		}),
		Graduated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "boxtrainer",
			Name:      "items_graduated_total",
			Help:      "Items that left the boxes for the review schedule.",
		}),
		SinkErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "boxtrainer",
			Name:      "analytics_sink_errors_total",
			Help:      "Analytics rows that could not be stored.",
		}),
	}
}

// Recorder is the analytics collaborator of the learning engine.
type Recorder struct {
	sink    Sink
	metrics *Metrics
	log     logrus.FieldLogger
}

// NewRecorder creates a recorder. sink may be nil to keep metrics only.
func NewRecorder(sink Sink, metrics *Metrics, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{sink: sink, metrics: metrics, log: log.WithField("component", "analytics")}
}

// LogLearningEvent counts an answer and stores it.
func (r *Recorder) LogLearningEvent(ctx context.Context, ev models.LearningEvent) error {
	if r.metrics != nil {
		r.metrics.Answers.WithLabelValues(string(ev.Box), string(ev.Result)).Inc()
		r.metrics.AnswerDuration.WithLabelValues(string(ev.Box)).Observe(ev.Duration.Seconds())
	}
	if r.sink == nil {
		return nil
	}
	if err := r.sink.InsertLearningEvent(ctx, ev); err != nil {
		r.sinkError()
		return fmt.Errorf("log learning event: %w", err)
	}
	return nil
}

// LogBoxMove counts a transition and stores it.
func (r *Recorder) LogBoxMove(ctx context.Context, mv models.BoxMove) error {
	if r.metrics != nil {
		to := string(mv.To)
		if to == "" {
			to = "learned"
		}
		r.metrics.Moves.WithLabelValues(string(mv.From), to).Inc()
	}
	if r.sink == nil {
		return nil
	}
	if err := r.sink.UpsertBoxMove(ctx, mv); err != nil {
		r.sinkError()
		return fmt.Errorf("log box move: %w", err)
	}
	return nil
}

// Mastered records the first top-box success of an item.
func (r *Recorder) Mastered(itemID int64) {
	if r.metrics != nil {
		r.metrics.Mastered.Inc()
	}
	r.log.WithField("item_id", itemID).Info("item mastered")
}

// Graduated records an item leaving the boxes.
func (r *Recorder) Graduated(item models.LearningItem) {
	if r.metrics != nil {
		r.metrics.Graduated.Inc()
	}
}

func (r *Recorder) sinkError() {
	if r.metrics != nil {
		r.metrics.SinkErrors.Inc()
	}
}
