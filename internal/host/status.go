package host

// Status is the lifecycle status of a plugin instance as tracked by the host.
type Status int32

const (
	StatusUnloaded Status = iota
	StatusCreated
	StatusInitialized
	StatusActivating
	StatusActivated
	StatusProcessing
	StatusDeactivated
	StatusDestroyed
)

func (s Status) String() string {
	switch s {
	case StatusUnloaded:
		return "unloaded"
	case StatusCreated:
		return "created"
	case StatusInitialized:
		return "initialized"
	case StatusActivating:
		return "activating"
	case StatusActivated:
		return "activated"
	case StatusProcessing:
		return "processing"
	case StatusDeactivated:
		return "deactivated"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Active reports whether the plugin is between activate() and deactivate().
func (s Status) Active() bool {
	return s == StatusActivating || s == StatusActivated || s == StatusProcessing
}

// allowed lists the statuses from which each lifecycle call may be made.
var allowed = map[string][]Status{
	"init":             {StatusCreated},
	"activate":         {StatusInitialized, StatusDeactivated},
	"deactivate":       {StatusActivated},
	"start_processing": {StatusActivated},
	"stop_processing":  {StatusProcessing},
	"process":          {StatusProcessing},
	"reset":            {StatusActivated, StatusProcessing},
	"destroy":          {StatusCreated, StatusInitialized, StatusDeactivated},
}

func callAllowed(call string, s Status) bool {
	for _, ok := range allowed[call] {
		if ok == s {
			return true
		}
	}
	return false
}
