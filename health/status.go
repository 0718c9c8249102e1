package health

import "time"

// State is one of healthy, degraded or unhealthy.
type State string

const (
	Healthy   State = "healthy"
	Degraded  State = "degraded"
	Unhealthy State = "unhealthy"
)

// Status is the evaluated health of one subsystem.
type Status struct {
	Component string    `json:"component"`
	State     State     `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthy builds a healthy status.
func NewHealthy(component, message string) Status {
	return Status{Component: component, State: Healthy, Message: message, Timestamp: time.Now()}
}

// NewDegraded builds a degraded status.
func NewDegraded(component, message string) Status {
	return Status{Component: component, State: Degraded, Message: message, Timestamp: time.Now()}
}

// NewUnhealthy builds an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{Component: component, State: Unhealthy, Message: message, Timestamp: time.Now()}
}

// Report is the aggregate of all probes.
type Report struct {
	State      State     `json:"state"`
	Timestamp  time.Time `json:"timestamp"`
	Subsystems []Status  `json:"subsystems"`
}

// aggregate folds subsystem states into one: any unhealthy subsystem makes
// the report unhealthy, otherwise any degraded one makes it degraded.
func aggregate(statuses []Status) State {
	state := Healthy
	for _, s := range statuses {
		switch s.State {
		case Unhealthy:
			return Unhealthy
		case Degraded:
			state = Degraded
		}
	}
	return state
}
