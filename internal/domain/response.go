package domain

import "encoding/json"

// Response is the editor's reply to exactly one Command. Result is meaningful
// only when Success is true, Error only when it is false.
type Response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ActiveFile is the result of get_active_file. Raw is the editor's result as
// sent, including any fields besides file_path.
type ActiveFile struct {
	FilePath string          `json:"file_path"`
	Raw      json.RawMessage `json:"-"`
}

// OK builds a successful response around an already-encoded result.
func OK(result json.RawMessage) Response {
	return Response{Success: true, Result: result}
}

// Fail builds a rejected response.
func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}
