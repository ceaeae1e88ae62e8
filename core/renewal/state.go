package renewal

// State is a step in the renewal flow
type State int

const (
	StateUnopened State = iota
	StateLoggedOut
	StateLoggingIn
	StateLoggedIn
	StateRenewalPageOpen
	StateCardFilled
	StateNotificationChecked
	StateSubmitted
	StateClosed
	StateFailed
)

var stateNames = map[State]string{
	StateUnopened:            "unopened",
	StateLoggedOut:           "logged_out",
	StateLoggingIn:           "logging_in",
	StateLoggedIn:            "logged_in",
	StateRenewalPageOpen:     "renewal_page_open",
	StateCardFilled:          "card_filled",
	StateNotificationChecked: "notification_checked",
	StateSubmitted:           "submitted",
	StateClosed:              "closed",
	StateFailed:              "failed",
}

// String returns the state name
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further operation is possible
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
