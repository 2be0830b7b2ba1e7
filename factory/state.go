package factory

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return `Created`
	case StateRunning:
		return `Running`
	case StateStopped:
		return `Stopped`
	default:
		return `Unknown`
	}
}
