package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qanda/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a question id does not reference a stored question.
var ErrNotFound = errors.New("not found")

// SortOrder selects chronological ordering for list operations.
type SortOrder int

const (
	Newest SortOrder = iota
	Oldest
)

func (o SortOrder) clause() string {
	if o == Oldest {
		return "created_at ASC, id ASC"
	}
	return "created_at DESC, id DESC"
}

type QAService struct {
	db      *gorm.DB
	tracer  trace.Tracer
	metrics *Metrics
	now     func() time.Time
}

type Option func(*QAService)

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *QAService) {
		s.tracer = tp.Tracer("qanda/services")
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *QAService) {
		s.metrics = m
	}
}

// WithClock overrides the timestamp source for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *QAService) {
		s.now = now
	}
}

func NewQAService(db *gorm.DB, opts ...Option) *QAService {
	s := &QAService{
		db:     db,
		tracer: otel.Tracer("qanda/services"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *QAService) CreateQuestion(ctx context.Context, text string) (*models.Question, error) {
	ctx, span := s.tracer.Start(ctx, "QAService.CreateQuestion")
	defer span.End()

	question := models.Question{
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&question).Error; err != nil {
		return nil, spanError(span, fmt.Errorf("create question: %w", err))
	}

	span.SetAttributes(attribute.Int64("qanda.question_id", int64(question.ID)))
	s.metrics.questionCreated()
	return &question, nil
}

func (s *QAService) CreateAnswer(ctx context.Context, questionID uint, text string) (*models.Answer, error) {
	ctx, span := s.tracer.Start(ctx, "QAService.CreateAnswer",
		trace.WithAttributes(attribute.Int64("qanda.question_id", int64(questionID))))
	defer span.End()

	answer := models.Answer{
		QuestionID: questionID,
		Text:       text,
		CreatedAt:  s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question models.Question
		if err := tx.Select("id").First(&question, questionID).Error; err != nil {
			return notFound(err)
		}
		return tx.Create(&answer).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, spanError(span, err)
		}
		return nil, spanError(span, fmt.Errorf("create answer: %w", err))
	}

	span.SetAttributes(attribute.Int64("qanda.answer_id", int64(answer.ID)))
	s.metrics.answerCreated()
	return &answer, nil
}

func (s *QAService) ListQuestions(ctx context.Context, order SortOrder) ([]models.Question, error) {
	ctx, span := s.tracer.Start(ctx, "QAService.ListQuestions")
	defer span.End()

	questions := []models.Question{}
	if err := s.db.WithContext(ctx).Order(order.clause()).Find(&questions).Error; err != nil {
		return nil, spanError(span, fmt.Errorf("list questions: %w", err))
	}

	span.SetAttributes(attribute.Int("qanda.count", len(questions)))
	return questions, nil
}

func (s *QAService) GetQuestion(ctx context.Context, id uint) (*models.Question, error) {
	ctx, span := s.tracer.Start(ctx, "QAService.GetQuestion",
		trace.WithAttributes(attribute.Int64("qanda.question_id", int64(id))))
	defer span.End()

	var question models.Question
	if err := s.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, spanError(span, notFound(err))
	}
	return &question, nil
}

func (s *QAService) ListAnswers(ctx context.Context, questionID uint, order SortOrder) ([]models.Answer, error) {
	ctx, span := s.tracer.Start(ctx, "QAService.ListAnswers",
		trace.WithAttributes(attribute.Int64("qanda.question_id", int64(questionID))))
	defer span.End()

	answers := []models.Answer{}
	err := s.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order(order.clause()).
		Find(&answers).Error
	if err != nil {
		return nil, spanError(span, fmt.Errorf("list answers: %w", err))
	}

	span.SetAttributes(attribute.Int("qanda.count", len(answers)))
	return answers, nil
}

// DeleteQuestion removes a question and every answer it owns in one
// transaction, independent of whether the dialect enforces the FK cascade.
func (s *QAService) DeleteQuestion(ctx context.Context, id uint) error {
	ctx, span := s.tracer.Start(ctx, "QAService.DeleteQuestion",
		trace.WithAttributes(attribute.Int64("qanda.question_id", int64(id))))
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var question models.Question
		if err := tx.Select("id").First(&question, id).Error; err != nil {
			return notFound(err)
		}

		res := tx.Where("question_id = ?", id).Delete(&models.Answer{})
		if res.Error != nil {
			return res.Error
		}
		span.SetAttributes(attribute.Int64("qanda.answers_deleted", res.RowsAffected))

		return tx.Delete(&models.Question{}, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return spanError(span, err)
		}
		return spanError(span, fmt.Errorf("delete question: %w", err))
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
