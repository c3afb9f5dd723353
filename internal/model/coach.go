package model

import "time"

// Coach is an entry of the coach directory eligible for support assignment.
type Coach struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Specialty string    `gorm:"type:varchar(128)" json:"specialty,omitempty"`
	Available bool      `gorm:"index;not null;default:true" json:"available"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
