package models

import "time"

// Teacher owns classrooms and is the authenticated principal of the grading API.
type Teacher struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	Email      string      `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name       string      `gorm:"size:255" json:"name"`
	GoogleID   string      `gorm:"size:128;index" json:"google_id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Classrooms []Classroom `json:"-"`
}

// Classroom groups assignments synchronised from the external classroom platform.
type Classroom struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	TeacherID   uint         `gorm:"not null;index" json:"teacher_id"`
	ExternalID  string       `gorm:"size:128;index" json:"external_id"`
	Name        string       `gorm:"size:255;not null" json:"name"`
	Section     string       `gorm:"size:255" json:"section"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Assignments []Assignment `json:"-"`
}
