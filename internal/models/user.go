package models

import (
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAnnotator Role = "annotator"
	RoleReviewer  Role = "reviewer"
	RoleEngineer  Role = "engineer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnnotator, RoleReviewer, RoleEngineer:
		return true
	}
	return false
}

// User is immutable after creation except for Role and IsActive.
type User struct {
	ID           uint64    `gorm:"primarykey" json:"id"`
	Username     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName     string    `gorm:"type:varchar(255)" json:"full_name"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null;default:'annotator'" json:"role"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relations
	CreatedTasks []Task           `gorm:"foreignKey:CreatorID" json:"-"`
	Assignments  []TaskAssignment `gorm:"foreignKey:UserID" json:"-"`
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
