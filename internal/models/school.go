package models

import "time"

// School is one tenant of the platform.
type School struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Class is a teaching group within a school.
type Class struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	Name      string    `db:"name" json:"name"`
	Section   string    `db:"section" json:"section"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DisplayName joins class name and section for reports.
func (c *Class) DisplayName() string {
	if c.Section == "" {
		return c.Name
	}
	return c.Name + " " + c.Section
}
