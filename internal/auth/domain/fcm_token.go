package domain

import "time"

// DeviceToken is a Firebase Cloud Messaging token of an operator device
type DeviceToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Operator   string    `json:"operator" gorm:"index;not null"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"` // Don't expose token in JSON
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (DeviceToken) TableName() string {
	return "operator_devices"
}
