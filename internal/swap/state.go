package swap

// State is a step of the swap loop.
type State int32

const (
	StateApproving State = iota
	StateSelectingPair
	StateCheckingBalance
	StateSwapping
	StateCooldown
	StateStopped
)

var stateNames = [...]string{
	StateApproving:       "APPROVING",
	StateSelectingPair:   "SELECTING_PAIR",
	StateCheckingBalance: "CHECKING_BALANCE",
	StateSwapping:        "SWAPPING",
	StateCooldown:        "COOLDOWN",
	StateStopped:         "STOPPED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}
