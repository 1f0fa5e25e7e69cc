package log

import (
	"context"
	"testing"
)

func TestErrorWithTraceID(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	tests := []struct {
		name   string
		fields Fields
		want   string
	}{
		{name: "reuses request id", fields: Fields{"request_id": "01HREQ"}, want: "01HREQ"},
		{name: "generates when unknown", fields: Fields{"request_id": "unknown"}},
		{name: "generates for nil fields", fields: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorWithTraceID(tt.fields, "vocabulary mismatch")
			if tt.want != "" && got != tt.want {
				t.Errorf("ErrorWithTraceID() = %q, want %q", got, tt.want)
			}
			if got == "" || got == "unknown" {
				t.Errorf("ErrorWithTraceID() = %q, want a trace id", got)
			}
		})
	}
}

func TestWithRequestID(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	ctx := context.WithValue(context.Background(), RequestIDKey, "01HREQ")
	if got := WithRequestID(ctx).Data["request_id"]; got != "01HREQ" {
		t.Errorf("WithRequestID() request_id = %v, want 01HREQ", got)
	}
	if got := WithRequestID(context.Background()).Data["request_id"]; got != "unknown" {
		t.Errorf("WithRequestID() request_id = %v, want unknown", got)
	}
}
