package enum

type SessionState string

const (
	SessionDisconnected SessionState = "disconnected"
	SessionConnecting   SessionState = "connecting"
	SessionReady        SessionState = "ready"
	SessionEnded        SessionState = "ended"
	SessionErrored      SessionState = "errored"
)

func (t SessionState) String() string {
	return string(t)
}

type RelayState string

const (
	RelayIdle         RelayState = "idle"
	RelayInitializing RelayState = "initializing"
	RelayRunning      RelayState = "running"
	RelayStopped      RelayState = "stopped"
)

func (t RelayState) String() string {
	return string(t)
}
