package utils

import (
	"encoding/json"
	"testing"
)

func TestRequestFingerprint(t *testing.T) {
	a := RequestFingerprint([]byte(`{"period":"2026-02"}`))
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a != RequestFingerprint([]byte(`{"period":"2026-02"}`)) {
		t.Fatalf("fingerprint is not stable")
	}
	if a == RequestFingerprint([]byte(`{"period":"2026-03"}`)) {
		t.Fatalf("different bodies share a fingerprint")
	}
	if RequestFingerprint(nil) != RequestFingerprint([]byte{}) {
		t.Fatalf("empty and nil bodies should match")
	}
}

func TestMarshalEnvelopes(t *testing.T) {
	b, err := MarshalSuccess(map[string]string{"runId": "r1"}, "trace-1")
	if err != nil {
		t.Fatalf("MarshalSuccess: %v", err)
	}
	if string(b) != `{"data":{"runId":"r1"},"traceId":"trace-1"}` {
		t.Fatalf("unexpected success envelope: %s", b)
	}

	var env ErrorEnvelope
	if err := json.Unmarshal(MarshalError(CodeNotFound, "resource not found", "trace-2", nil), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Code != CodeNotFound || env.TraceId != "trace-2" || env.ValidationErrors != nil {
		t.Fatalf("unexpected error envelope: %+v", env)
	}

	withFields := MarshalError(CodeValidationFailed, "request validation failed", "", []FieldError{{Field: "period", Message: "is required"}})
	if err := json.Unmarshal(withFields, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(env.ValidationErrors) != 1 || env.ValidationErrors[0].Field != "period" {
		t.Fatalf("unexpected validation errors: %+v", env.ValidationErrors)
	}
}
