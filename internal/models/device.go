package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DeviceStatusOnline   = "online"
	DeviceStatusOffline  = "offline"
	DeviceStatusWarning  = "warning"
	DeviceStatusCritical = "critical"
	DeviceStatusUnknown  = "unknown"
)

type Device struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Hostname            string         `gorm:"not null" json:"hostname"`
	Address             string         `gorm:"not null" json:"address"`
	Port                int            `gorm:"default:22" json:"port"`
	Username            string         `gorm:"not null" json:"username"`
	AuthType            string         `gorm:"not null;default:'password'" json:"auth_type"` // password or key
	EncryptedPassword   string         `gorm:"" json:"-"`
	EncryptedPrivateKey string         `gorm:"type:text" json:"-"`
	Fingerprint         string         `gorm:"" json:"fingerprint"`
	Status              string         `gorm:"default:'unknown'" json:"status"` // online, offline, warning, critical, unknown
	HealthScore         int            `gorm:"default:0" json:"health_score"`
	LastSeenAt          *time.Time     `json:"last_seen_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
