package hub

// Session phase: the coarse state a viewer renders in the session list.
const (
	PhaseIdle    = "idle"
	PhaseRunning = "running"
	PhaseError   = "error"
)

// Process state of the external agent CLI.
const (
	ProcessAlive   = "alive"
	ProcessStopped = "stopped"
)

// Activity within a live process.
const (
	ActivityIdle    = "idle"
	ActivityWorking = "working"
)

// ExitStatus records how the agent process last terminated. Code is nil when
// the process was reaped without a status (treated as unexpected).
type ExitStatus struct {
	Code       *int `json:"code"`
	Unexpected bool `json:"unexpected"`
}

// SessionRuntime is derived state, never independently mutated: it follows
// from process liveness, current activity, and the last observed exit.
type SessionRuntime struct {
	Phase        string      `json:"phase"`
	ProcessState string      `json:"process_state"`
	Activity     string      `json:"activity"`
	LastExit     *ExitStatus `json:"last_exit,omitempty"`
}

// deriveRuntime computes the runtime from its two independent signals plus
// the remembered last exit. Phase is running while the process is alive,
// idle after a clean (or no) exit, and error after an unexpected one.
func deriveRuntime(alive, working bool, lastExit *ExitStatus) SessionRuntime {
	rt := SessionRuntime{
		ProcessState: ProcessStopped,
		Activity:     ActivityIdle,
		LastExit:     lastExit,
	}
	if alive {
		rt.ProcessState = ProcessAlive
		rt.Phase = PhaseRunning
		if working {
			rt.Activity = ActivityWorking
		}
		return rt
	}
	if lastExit != nil && lastExit.Unexpected {
		rt.Phase = PhaseError
	} else {
		rt.Phase = PhaseIdle
	}
	return rt
}

// exitStatus classifies an exit code: exactly zero is expected, anything
// else — including an unknown (nil) code — is not.
func exitStatus(code *int) *ExitStatus {
	return &ExitStatus{
		Code:       code,
		Unexpected: code == nil || *code != 0,
	}
}
