package oauth2client

// State is the lifecycle state of the token held by CredentialCache.
//
//	EMPTY --refresh success--> VALID --time passes--> EXPIRED --refresh--> VALID
//	any --Invalidate--> EMPTY
//	any --refresh failure--> EMPTY
type State int

const (
	// StateEmpty means no token is held. It is the initial state.
	StateEmpty State = iota
	// StateValid means a token is held and is outside the safety margin of its expiry.
	StateValid
	// StateExpired means a token is held but has expired or is within the safety margin.
	StateExpired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateValid:
		return "VALID"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}
