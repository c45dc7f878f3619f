package model

import "time"

// Accessory is the registry row for the garage door accessory. It holds the
// latest known state only; transitions are not archived.
type Accessory struct {
	SerialNumber string    `gorm:"primaryKey;size:64"`
	Name         string    `gorm:"size:128;not null"`
	Manufacturer string    `gorm:"size:128;not null"`
	Model        string    `gorm:"size:128;not null"`
	CurrentState string    `gorm:"size:16"`
	TargetState  string    `gorm:"size:16"`
	LastSeenAt   time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}
