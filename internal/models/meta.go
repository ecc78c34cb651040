package models

import "time"

// Meta holds the fields every DevOps API record carries.
type Meta struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	DateCreated time.Time         `json:"dateCreated"`
	DateEdited  time.Time         `json:"dateEdited"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ID returns the record uuid.
func (m Meta) ID() string { return m.UUID }

// DisplayName returns the record name.
func (m Meta) DisplayName() string { return m.Name }

// Record is implemented by every resource type through Meta.
type Record interface {
	ID() string
	DisplayName() string
}

// Described is the create/update payload shared by most resources.
type Described struct {
	Name        string            `json:"name" validate:"required,max=255"`
	Description string            `json:"description,omitempty" validate:"max=4096"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
