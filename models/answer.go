package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	QuestionID uint      `json:"question_id" gorm:"not null;index"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null"`

	// Relationships. Deleting the question deletes its answers.
	Question *Question `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (a Answer) String() string {
	if a.Question == nil {
		return "Answer to question " + strconv.FormatUint(uint64(a.QuestionID), 10)
	}
	return "Answer to: " + truncate(a.Question.Text, 30)
}

// AutoMigrate creates or updates the tables for every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Question{}, &Answer{})
}
