package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a parameter value.
type InjectionCheckResult struct {
	Position    int    // 1-based position of the parameter ($1, @p1)
	Fingerprint string // libinjection fingerprint of the detected pattern
}

func (r *InjectionCheckResult) Error() string {
	return fmt.Sprintf("parameter %d looks like SQL injection (fingerprint %s)", r.Position, r.Fingerprint)
}

// CheckParameterForInjection uses libinjection to detect SQL injection patterns
// in a parameter value. Only string values are checked.
func CheckParameterForInjection(position int, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(strValue); isSQLi {
		return &InjectionCheckResult{Position: position, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckParameters returns the first positional parameter that looks like an
// injection attempt, or nil when all are clean.
func CheckParameters(params []any) *InjectionCheckResult {
	for i, value := range params {
		if result := CheckParameterForInjection(i+1, value); result != nil {
			return result
		}
	}
	return nil
}
