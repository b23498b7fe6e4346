// Package registry stores converter modules and matches jobs to the
// module that can run them.
package registry

import (
	"fmt"

	"github.com/calebt/typeset/internal/models"
	"gorm.io/gorm"
)

// NoMatchError is returned when no registered module can satisfy a
// capability triple.
type NoMatchError struct {
	ResourceType string
	InputFormat  string
	OutputFormat string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no converter was found to convert %s from %s to %s",
		e.ResourceType, e.InputFormat, e.OutputFormat)
}

// Register validates and persists a module, appending the derived public
// invocation link. The module becomes resolvable immediately.
func Register(db *gorm.DB, apiURL string, m *models.Module) (*models.Module, error) {
	if m.Name == "" {
		return nil, fmt.Errorf(`registry: "name" not given`)
	}
	if m.Type == "" {
		return nil, fmt.Errorf(`registry: "type" not given`)
	}
	if m.InputFormat == "" {
		return nil, fmt.Errorf(`registry: "input_format" not given`)
	}
	if m.OutputFormat == "" {
		return nil, fmt.Errorf(`registry: "output_format" not given`)
	}
	if len(m.ResourceTypes) == 0 {
		return nil, fmt.Errorf(`registry: "resource_types" not given`)
	}

	m.PublicLinks = append(m.PublicLinks, fmt.Sprintf("%s/tx/convert/%s", apiURL, m.Name))
	if m.Version == 0 {
		m.Version = 1
	}

	if err := db.Create(m).Error; err != nil {
		return nil, fmt.Errorf("registry: register %q: %w", m.Name, err)
	}
	return m, nil
}

// Resolve returns the module that will run the job. Modules are checked
// in registration order and the first match wins, so resolution is
// deterministic even when several modules cover the same triple.
func Resolve(db *gorm.DB, job *models.Job) (*models.Module, error) {
	modules, err := List(db)
	if err != nil {
		return nil, err
	}
	for i := range modules {
		if modules[i].Accepts(job.ResourceType, job.InputFormat, job.OutputFormat) {
			return &modules[i], nil
		}
	}
	return nil, &NoMatchError{
		ResourceType: job.ResourceType,
		InputFormat:  job.InputFormat,
		OutputFormat: job.OutputFormat,
	}
}

// List returns all registered modules in registration order.
func List(db *gorm.DB) ([]models.Module, error) {
	var modules []models.Module
	if err := db.Order("id ASC").Find(&modules).Error; err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	return modules, nil
}

// Get returns the module with the given name.
func Get(db *gorm.DB, name string) (*models.Module, error) {
	var m models.Module
	if err := db.Where("name = ?", name).First(&m).Error; err != nil {
		return nil, fmt.Errorf("registry: get %q: %w", name, err)
	}
	return &m, nil
}

// Update persists changes to an existing module.
func Update(db *gorm.DB, m *models.Module) error {
	if err := db.Save(m).Error; err != nil {
		return fmt.Errorf("registry: update %q: %w", m.Name, err)
	}
	return nil
}

// Delete removes a module from the registry.
func Delete(db *gorm.DB, name string) error {
	result := db.Where("name = ?", name).Delete(&models.Module{})
	if result.Error != nil {
		return fmt.Errorf("registry: delete %q: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("registry: module not found: %s", name)
	}
	return nil
}
