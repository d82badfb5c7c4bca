package model

import "github.com/rotisserie/eris"

var errInvalidCacheRow = eris.New("model: cache row invariant violated: fail_streak > 0 but last_attempt_at precedes last_success_at")
