package messenger

import (
	meshErrors "github.com/grovetools/mesh/errors"
)

// Result is the structured {text, details} pair every action returns. Errors
// are distinguished by the details.error discriminator.
type Result struct {
	Text    string                 `json:"text"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ok builds a success result.
func ok(text string, details map[string]interface{}) Result {
	return Result{Text: text, Details: details}
}

// fail converts an error into a Result. Typed MeshErrors surface their code
// and details; anything else becomes INTERNAL_ERROR.
func fail(err error) Result {
	details := map[string]interface{}{}
	if meshErr, isTyped := err.(*meshErrors.MeshError); isTyped {
		details["error"] = string(meshErr.Code)
		for k, v := range meshErr.Details {
			details[k] = v
		}
		return Result{Text: meshErr.Message, Details: details}
	}
	details["error"] = string(meshErrors.ErrCodeInternal)
	return Result{Text: err.Error(), Details: details}
}

// IsError reports whether a result carries an error discriminator.
func (r Result) IsError() bool {
	_, found := r.Details["error"]
	return found
}
