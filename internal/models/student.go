package models

import "time"

// Student represents a learner registered with a school.
type Student struct {
	ID            string    `db:"id" json:"id"`
	SchoolID      string    `db:"school_id" json:"school_id"`
	ClassID       string    `db:"class_id" json:"class_id"`
	AdmissionNo   string    `db:"admission_no" json:"admission_no"`
	FullName      string    `db:"full_name" json:"full_name"`
	Phone         string    `db:"phone" json:"phone"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	GuardianEmail string    `db:"guardian_email" json:"guardian_email"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	SchoolID  string
	ClassID   string
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
