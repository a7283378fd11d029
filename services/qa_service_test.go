package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qanda/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func questionTexts(qs []models.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

func answerTexts(as []models.Answer) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Text
	}
	return out
}

func TestCreateQuestion_AssignsIDAndTimestamp(t *testing.T) {
	s := NewQAService(newTestDB(t), WithClock(stepClock()))
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, "What is 2+2?")
	require.NoError(t, err)

	assert.NotZero(t, q.ID)
	assert.Equal(t, "What is 2+2?", q.Text)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC), q.CreatedAt)

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Text, got.Text)
}

func TestListQuestions_NewestFirst(t *testing.T) {
	s := NewQAService(newTestDB(t), WithClock(stepClock()))
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		_, err := s.CreateQuestion(ctx, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	questions, err := s.ListQuestions(ctx, Newest)
	require.NoError(t, err)
	assert.Equal(t, []string{"q4", "q3", "q2", "q1", "q0"}, questionTexts(questions))

	oldest, err := s.ListQuestions(ctx, Oldest)
	require.NoError(t, err)
	assert.Equal(t, []string{"q0", "q1", "q2", "q3", "q4"}, questionTexts(oldest))
}

func TestListQuestions_SameTimestampFallsBackToID(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewQAService(newTestDB(t), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		_, err := s.CreateQuestion(ctx, text)
		require.NoError(t, err)
	}

	questions, err := s.ListQuestions(ctx, Newest)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, questionTexts(questions))
}

func TestListQuestions_Empty(t *testing.T) {
	s := NewQAService(newTestDB(t))

	questions, err := s.ListQuestions(context.Background(), Newest)
	require.NoError(t, err)
	assert.NotNil(t, questions)
	assert.Empty(t, questions)
}

func TestNewQuestionAppearsFirstExactlyOnce(t *testing.T) {
	s := NewQAService(newTestDB(t), WithClock(stepClock()))
	ctx := context.Background()

	for _, text := range []string{"older", "same text", "newer"} {
		_, err := s.CreateQuestion(ctx, text)
		require.NoError(t, err)
	}
	_, err := s.CreateQuestion(ctx, "unique text")
	require.NoError(t, err)

	questions, err := s.ListQuestions(ctx, Newest)
	require.NoError(t, err)
	require.Len(t, questions, 4)
	assert.Equal(t, "unique text", questions[0].Text)

	count := 0
	for _, q := range questions {
		if q.Text == "unique text" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestGetQuestion_NotFound(t *testing.T) {
	s := NewQAService(newTestDB(t))

	_, err := s.GetQuestion(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAnswer_OldestFirst(t *testing.T) {
	s := NewQAService(newTestDB(t), WithClock(stepClock()))
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, "What is 2+2?")
	require.NoError(t, err)
	other, err := s.CreateQuestion(ctx, "Other")
	require.NoError(t, err)

	for _, text := range []string{"4", "four", "IV"} {
		_, err := s.CreateAnswer(ctx, q.ID, text)
		require.NoError(t, err)
	}
	_, err = s.CreateAnswer(ctx, other.ID, "unrelated")
	require.NoError(t, err)

	answers, err := s.ListAnswers(ctx, q.ID, Oldest)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "four", "IV"}, answerTexts(answers))

	for i := 1; i < len(answers); i++ {
		assert.False(t, answers[i].CreatedAt.Before(answers[i-1].CreatedAt))
	}
}

func TestCreateAnswer_UnknownQuestion(t *testing.T) {
	db := newTestDB(t)
	s := NewQAService(db)

	_, err := s.CreateAnswer(context.Background(), 999, "orphan")
	assert.ErrorIs(t, err, ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Answer{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListAnswers_NoneIsEmpty(t *testing.T) {
	s := NewQAService(newTestDB(t))
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, "Lonely?")
	require.NoError(t, err)

	answers, err := s.ListAnswers(ctx, q.ID, Oldest)
	require.NoError(t, err)
	assert.NotNil(t, answers)
	assert.Empty(t, answers)
}

func TestDeleteQuestion_CascadesAnswers(t *testing.T) {
	db := newTestDB(t)
	s := NewQAService(db, WithClock(stepClock()))
	ctx := context.Background()

	doomed, err := s.CreateQuestion(ctx, "doomed")
	require.NoError(t, err)
	kept, err := s.CreateQuestion(ctx, "kept")
	require.NoError(t, err)

	_, err = s.CreateAnswer(ctx, doomed.ID, "a1")
	require.NoError(t, err)
	_, err = s.CreateAnswer(ctx, doomed.ID, "a2")
	require.NoError(t, err)
	_, err = s.CreateAnswer(ctx, kept.ID, "b1")
	require.NoError(t, err)

	require.NoError(t, s.DeleteQuestion(ctx, doomed.ID))

	_, err = s.GetQuestion(ctx, doomed.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphaned int64
	require.NoError(t, db.Model(&models.Answer{}).Where("question_id = ?", doomed.ID).Count(&orphaned).Error)
	assert.Zero(t, orphaned)

	answers, err := s.ListAnswers(ctx, kept.ID, Oldest)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, answerTexts(answers))

	assert.ErrorIs(t, s.DeleteQuestion(ctx, doomed.ID), ErrNotFound)
}

func TestForeignKeyCascade(t *testing.T) {
	db := newTestDB(t)
	s := NewQAService(db)
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, "raw delete")
	require.NoError(t, err)
	_, err = s.CreateAnswer(ctx, q.ID, "dependent")
	require.NoError(t, err)

	// Bypass DeleteQuestion so only the schema constraint removes the answer.
	require.NoError(t, db.Exec("DELETE FROM questions WHERE id = ?", q.ID).Error)

	var count int64
	require.NoError(t, db.Model(&models.Answer{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	s := NewQAService(newTestDB(t))
	ctx := context.Background()

	const workers = 20
	ids := make(chan uint, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := s.CreateQuestion(ctx, fmt.Sprintf("concurrent %d", i))
			if assert.NoError(t, err) {
				ids <- q.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers)

	questions, err := s.ListQuestions(ctx, Newest)
	require.NoError(t, err)
	assert.Len(t, questions, workers)
}

func TestMetricsCountCreates(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	s := NewQAService(newTestDB(t), WithMetrics(metrics))
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, "counted")
	require.NoError(t, err)
	_, err = s.CreateAnswer(ctx, q.ID, "also counted")
	require.NoError(t, err)
	_, err = s.CreateAnswer(ctx, q.ID+100, "not counted")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.questionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.answersCreated))

	metrics.ValidationRejected("answer")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections.WithLabelValues("answer")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.questionCreated()
		m.answerCreated()
		m.ValidationRejected("question")
		m.ObserveRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestTracingSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	s := NewQAService(newTestDB(t), WithTracerProvider(tp))
	ctx := context.Background()

	q, err := s.CreateQuestion(ctx, "traced")
	require.NoError(t, err)
	_, err = s.GetQuestion(ctx, q.ID+1)
	require.ErrorIs(t, err, ErrNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "QAService.CreateQuestion", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "QAService.GetQuestion", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
