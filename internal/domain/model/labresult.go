package model

import "time"

// LabResult is a single lab-value reading synchronized from the remote
// service. PublicID is the stable natural key for upserts: two results
// sharing a PublicID are the same logical entity regardless of which
// sync cycle wrote them.
type LabResult struct {
	ID       int64
	PublicID string // UUID assigned by the remote service.
	OwnerID  string
	TakenAt  time.Time
	Value    float64
	Note     string
	Flagged  bool
	Deleted  bool
}
