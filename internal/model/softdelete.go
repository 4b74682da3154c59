package model

import "time"

// SoftDelete is composed into entities that are hidden rather than removed.
type SoftDelete struct {
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (s *SoftDelete) Delete(now time.Time) {
	s.IsDeleted = true
	s.DeletedAt = &now
}

func (s *SoftDelete) Restore() {
	s.IsDeleted = false
	s.DeletedAt = nil
}
