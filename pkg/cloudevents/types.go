package cloudevents

import (
	"time"
)

// Source of events emitted by this service
const SourceVerification = "/wms/verification-service"

// Extension attribute names
const (
	ExtCorrelationID = "wmscorrelationid"
	ExtPlanID        = "wmsplanid"
	ExtStaffCode     = "wmsstaffcode"
	ExtTraceParent   = "traceparent"
	ExtTraceState    = "tracestate"
)

// WMSCloudEvent represents a CloudEvents v1.0 compliant event
type WMSCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	PlanID        string `json:"wmsplanid,omitempty"`
	StaffCode     string `json:"wmsstaffcode,omitempty"`

	// W3C trace context, carried so consumers can continue the trace
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// Headers returns the binary-mode CloudEvents headers for the event
func (e *WMSCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce-specversion": e.SpecVersion,
		"ce-type":        e.Type,
		"ce-source":      e.Source,
		"ce-id":          e.ID,
		"ce-time":        e.Time.Format(time.RFC3339Nano),
		"content-type":   e.DataContentType,
	}
	optional := map[string]string{
		ExtCorrelationID: e.CorrelationID,
		ExtPlanID:        e.PlanID,
		ExtStaffCode:     e.StaffCode,
		ExtTraceParent:   e.TraceParent,
		ExtTraceState:    e.TraceState,
	}
	for k, v := range optional {
		if v != "" {
			headers["ce-"+k] = v
		}
	}
	return headers
}
