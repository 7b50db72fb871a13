package event

type Type string

const (
	TypeSessionRestored           Type = "session.restored"
	TypeSessionSignedIn           Type = "session.signed_in"
	TypeSessionSignedOut          Type = "session.signed_out"
	TypeSessionFirstAccessCleared Type = "session.first_access_cleared"
	TypeAccessReevaluated         Type = "access.reevaluated"
	TypeNotice                    Type = "notice"
)

// IsSession reports whether the event changes who is signed in or what they
// may reach.
func (t Type) IsSession() bool {
	switch t {
	case TypeSessionRestored, TypeSessionSignedIn, TypeSessionSignedOut, TypeSessionFirstAccessCleared:
		return true
	}
	return false
}

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
