// File: httpx/json.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Result is a uniform success/error envelope handlers can use instead of
// writing raw bodies by hand.

package httpx

import "encoding/json"

// Result wraps a handler's payload in a success/code/message envelope.
// Data is omitted from the wire form when nil.
type Result struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// SuccessResult builds a Result reporting success.
func SuccessResult(code int, message string, data any) Result {
	return Result{Success: true, Code: code, Message: message, Data: data}
}

// ErrorResult builds a Result reporting failure; Data is always omitted.
func ErrorResult(code int, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}

// WriteJSON marshals v and sets it as resp's body with a JSON content
// type and matching status code.
func WriteJSON(resp *HttpResponse, statusCode int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	resp.SetStatus(statusCode, statusText(statusCode))
	resp.SetContentType("application/json; charset=utf-8")
	resp.SetBody(body)
	return nil
}
