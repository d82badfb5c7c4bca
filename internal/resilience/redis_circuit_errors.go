package resilience

import "github.com/rotisserie/eris"

var (
	errBadScriptResult = eris.New("resilience: unexpected circuit script result shape")
	errSentinelFailure = eris.New("resilience: recorded failure")
)
