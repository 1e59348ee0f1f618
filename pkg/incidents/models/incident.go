package models

import "time"

// RawFeedMessage is a frame as delivered by the feed transport
type RawFeedMessage struct {
	Body        []byte
	Sequence    string
	MessageType string
	ReceivedAt  time.Time
}

// ServiceRoute is one origin/destination pair parsed from the routes-affected text
type ServiceRoute struct {
	Origin      string `json:"origin_station"`
	Destination string `json:"destination_station"`
}

// Incident is a normalized feed incident.
// Start is always set and in UTC; End, when set, is not before Start.
// ServicesAffected is never nil.
type Incident struct {
	Summary          string         `json:"summary"`
	Operators        []string       `json:"operators"`
	Start            time.Time      `json:"incident_start"`
	End              *time.Time     `json:"incident_end,omitempty"`
	URL              string         `json:"url"`
	Planned          *bool          `json:"planned"`
	ServicesAffected []ServiceRoute `json:"services_affected"`
}

// PersistedIncident is an incident with its database identifier
type PersistedIncident struct {
	ID int `json:"incident_id"`
	Incident
}

type ServiceAssignment struct {
	ServiceID  int
	IncidentID int
}

// ServiceDetail describes an assigned service for alert text
type ServiceDetail struct {
	OperatorName       string
	OriginStation      string
	DestinationStation string
}

// Notification is a single fan-out publish
type Notification struct {
	IncidentID int      `json:"incident_id"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Stations   []string `json:"stations"`
}
