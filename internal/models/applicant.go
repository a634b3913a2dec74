package models

import "time"

// Status is the moderation state of an applicant.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var statusLabels = map[Status]string{
	StatusPending:  "queued",
	StatusApproved: "accepted",
	StatusRejected: "declined",
}

// Label returns the user facing name of the status.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ApplicantRecord is a defender application, one per Telegram user.
type ApplicantRecord struct {
	UserID       int64     `bson:"_id" json:"user_id"`
	Username     string    `bson:"username" json:"username"`
	Region       string    `bson:"region" json:"region"`
	Nick         string    `bson:"nick" json:"nick"`
	Skills       string    `bson:"skills" json:"skills"`
	Details      string    `bson:"details" json:"details"`
	Status       Status    `bson:"status" json:"status"`
	RegisteredAt time.Time `bson:"registered_at" json:"registered_at"`
}

// ApplicantFields are the mutable parts of a record. An upsert replaces all
// of them at once.
type ApplicantFields struct {
	Username string
	Region   string
	Nick     string
	Skills   string
	Details  string
	// Status defaults to pending when empty.
	Status Status
}

// Normalized returns f with a default status applied.
func (f ApplicantFields) Normalized() ApplicantFields {
	if f.Status == "" {
		f.Status = StatusPending
	}
	return f
}

// Apply overwrites the mutable fields of r with f.
func (r *ApplicantRecord) Apply(f ApplicantFields) {
	f = f.Normalized()
	r.Username = f.Username
	r.Region = f.Region
	r.Nick = f.Nick
	r.Skills = f.Skills
	r.Details = f.Details
	r.Status = f.Status
}

// HelpSignal is an SOS request. It is delivered and then forgotten.
type HelpSignal struct {
	ID       string
	UserID   int64
	Username string
	Location string
	Issue    string
	Contact  string
}
