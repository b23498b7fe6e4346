package models

import "time"

// Module is a registered conversion capability: a named converter that
// accepts certain resource types and formats and exposes invocation
// endpoints.
type Module struct {
	ID            uint              `gorm:"primaryKey;autoIncrement" json:"-"`
	Name          string            `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Type          string            `gorm:"size:32" json:"type"`
	InputFormat   string            `gorm:"size:16" json:"input_format"`
	OutputFormat  string            `gorm:"size:16" json:"output_format"`
	ResourceTypes []string          `gorm:"serializer:json;type:json" json:"resource_types"`
	Version       int               `gorm:"default:1" json:"version"`
	Options       map[string]string `gorm:"serializer:json;type:json" json:"options"`
	PrivateLinks  []string          `gorm:"serializer:json;type:json" json:"private_links"`
	PublicLinks   []string          `gorm:"serializer:json;type:json" json:"public_links"`
	CreatedAt     time.Time         `json:"-"`
	UpdatedAt     time.Time         `json:"-"`
}

// Accepts reports whether the module can run a job with the given
// capability triple.
func (m *Module) Accepts(resourceType, inputFormat, outputFormat string) bool {
	if m.InputFormat != inputFormat || m.OutputFormat != outputFormat {
		return false
	}
	for _, rt := range m.ResourceTypes {
		if rt == resourceType {
			return true
		}
	}
	return false
}
