package utils

import "encoding/json"

// SuccessEnvelope wraps every successful response body.
type SuccessEnvelope struct {
	Data    any    `json:"data"`
	TraceId string `json:"traceId"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps every error response body.
type ErrorEnvelope struct {
	Code             string       `json:"code"`
	Message          string       `json:"message"`
	TraceId          string       `json:"traceId"`
	ValidationErrors []FieldError `json:"validationErrors,omitempty"`
}

func MarshalSuccess(data any, traceId string) ([]byte, error) {
	return json.Marshal(SuccessEnvelope{Data: data, TraceId: traceId})
}

func MarshalError(code, message, traceId string, fields []FieldError) []byte {
	b, err := json.Marshal(ErrorEnvelope{Code: code, Message: message, TraceId: traceId, ValidationErrors: fields})
	if err != nil {
		// only strings inside; unreachable in practice
		return []byte(`{"code":"INTERNAL","message":"internal error","traceId":""}`)
	}
	return b
}
