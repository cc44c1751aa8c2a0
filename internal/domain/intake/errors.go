package intake

import (
	"fmt"
	"strings"
)

// ValidationError reports recognized fields that failed the questionnaire schema.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid questionnaire: %v", e.Err)
	}
	return fmt.Sprintf("invalid questionnaire fields [%s]: %v", strings.Join(e.Fields, ", "), e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
