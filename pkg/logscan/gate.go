package logscan

import (
	"regexp"
)

// GateResult is the outcome of checking a build log against a gating pattern
type GateResult int

const (
	// GatePassed means the pattern was found, or there is no gate
	GatePassed GateResult = iota
	// GateNotFound means the log was read to the end without a match
	GateNotFound
	// GateScanError means the log could not be read; callers treat it as passed
	GateScanError
)

func (g GateResult) String() string {
	switch g {
	case GatePassed:
		return "passed"
	case GateNotFound:
		return "not_found"
	case GateScanError:
		return "scan_error"
	}
	return "unknown"
}

// Allows reports whether the gate lets a retry through. A scan error fails open.
func (g GateResult) Allows() bool {
	return g != GateNotFound
}

// Gate scans src for re. A nil pattern always passes.
// The returned error is only set together with GateScanError.
func Gate(src Source, re *regexp.Regexp) (GateResult, error) {
	if re == nil {
		return GatePassed, nil
	}
	found, err := Contains(src, re)
	if err != nil {
		return GateScanError, err
	}
	if !found {
		return GateNotFound, nil
	}
	return GatePassed, nil
}
