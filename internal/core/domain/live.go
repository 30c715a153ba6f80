package domain

import "encoding/json"

// Control channel event names.
const (
	EventLiveViewStart     = "live_view:start"
	EventLiveViewStop      = "live_view:stop"
	EventLiveViewTerminate = "live_view:terminate"
	EventLiveViewFrame     = "live_view:frame"
	EventLiveViewInitiate  = "live_view:initiate"
	EventPresenceList      = "presence:list"
	EventPresenceOnline    = "presence:online"
	EventPresenceOffline   = "presence:offline"
	EventIntervalAssigned  = "interval:assigned"
)

// TerminateReason explains why frame relay for a source stopped.
type TerminateReason string

const (
	ReasonOffline           TerminateReason = "offline"
	ReasonManagerStop       TerminateReason = "manager_stop"
	ReasonEmployeeTerminate TerminateReason = "employee_terminate"
	ReasonWorkStop          TerminateReason = "work_stop"
	ReasonSourceRemoved     TerminateReason = "source_removed"
)

// SourceRef is the payload of viewer start/stop and source terminate messages.
type SourceRef struct {
	SourceID SubjectID `json:"sourceId"`
}

// Frame is a single screen snapshot. FrameBytes is base64 on the wire.
type Frame struct {
	SourceID   SubjectID `json:"sourceId"`
	FrameBytes []byte    `json:"frameBytes"`
	TS         int64     `json:"ts"`
}

// LiveViewNotice is sent on live_view:initiate and live_view:terminate.
type LiveViewNotice struct {
	By       SubjectID       `json:"by"`
	SourceID SubjectID       `json:"sourceId,omitempty"`
	Reason   TerminateReason `json:"reason,omitempty"`
}

// PresenceList is the connect-time snapshot sent to viewers.
type PresenceList struct {
	Users []SubjectID `json:"users"`
}

// PresenceChange is sent on presence:online and presence:offline.
type PresenceChange struct {
	UserID SubjectID `json:"userId"`
}

// IntervalAssigned tells a source its new capture cadence.
type IntervalAssigned struct {
	SourceID        SubjectID `json:"sourceId"`
	IntervalSeconds int       `json:"intervalSeconds"`
}

// IntervalAssignment is the stored capture cadence of a source.
type IntervalAssignment struct {
	Assigned        bool `json:"assigned"`
	IntervalSeconds *int `json:"intervalSeconds"`
}

// Envelope is a control channel frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent builds the wire bytes of an event. Encoding happens once per
// event no matter how many connections receive it.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
