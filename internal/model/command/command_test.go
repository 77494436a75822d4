package command

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCommandStatusIsValid(t *testing.T) {
	valid := []CommandStatus{StatusPending, StatusSent, StatusSuccess, StatusFail, StatusTimeout}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", s)
		}
	}

	if CommandStatus("cancelled").IsValid() {
		t.Error("IsValid(\"cancelled\") = true, want false")
	}
	if CommandStatus("").IsValid() {
		t.Error("IsValid(\"\") = true, want false")
	}
}

func TestCommandStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status CommandStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusSent, false},
		{StatusSuccess, true},
		{StatusFail, true},
		{StatusTimeout, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCommandStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from CommandStatus
		to   CommandStatus
		want bool
	}{
		{"pending_to_sent", StatusPending, StatusSent, true},
		{"pending_to_success", StatusPending, StatusSuccess, true},
		{"pending_to_fail", StatusPending, StatusFail, true},
		{"pending_to_timeout", StatusPending, StatusTimeout, true},
		{"sent_to_success", StatusSent, StatusSuccess, true},
		{"sent_to_fail", StatusSent, StatusFail, true},
		{"sent_to_timeout", StatusSent, StatusTimeout, true},
		{"sent_to_pending", StatusSent, StatusPending, false},
		{"fail_to_pending", StatusFail, StatusPending, true},
		{"fail_to_success", StatusFail, StatusSuccess, false},
		{"timeout_to_pending", StatusTimeout, StatusPending, true},
		{"timeout_to_sent", StatusTimeout, StatusSent, false},
		{"success_to_pending", StatusSuccess, StatusPending, false},
		{"success_to_fail", StatusSuccess, StatusFail, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCommandIsDeliverable(t *testing.T) {
	tests := []struct {
		status CommandStatus
		want   bool
	}{
		{StatusPending, true},
		{StatusSent, true},
		{StatusSuccess, false},
		{StatusFail, false},
		{StatusTimeout, false},
	}

	for _, tt := range tests {
		cmd := &Command{Status: tt.status}
		if got := cmd.IsDeliverable(); got != tt.want {
			t.Errorf("IsDeliverable(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestResultReportRequestSucceeded(t *testing.T) {
	boolTrue := true
	boolFalse := false

	tests := []struct {
		name string
		req  ResultReportRequest
		want bool
	}{
		{"status_success", ResultReportRequest{Status: "success"}, true},
		{"status_ok", ResultReportRequest{Status: "ok"}, true},
		{"status_fail", ResultReportRequest{Status: "fail"}, false},
		{"status_failed", ResultReportRequest{Status: "failed"}, false},
		{"status_error", ResultReportRequest{Status: "error"}, false},
		{"bool_true", ResultReportRequest{Success: &boolTrue}, true},
		{"bool_false", ResultReportRequest{Success: &boolFalse}, false},
		{"status_overrides_bool", ResultReportRequest{Status: "fail", Success: &boolTrue}, false},
		{"empty_defaults_success", ResultReportRequest{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Succeeded(); got != tt.want {
				t.Errorf("Succeeded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResultReportRequestPayload(t *testing.T) {
	body := []byte(`{"command_id":"cmd-1","status":"success","result_payload":{"temp":92},"result_at":"2026-03-26T10:00:00Z"}`)
	var req ResultReportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.Payload()["temp"] != float64(92) {
		t.Errorf("Payload()[temp] = %v, want 92", req.Payload()["temp"])
	}

	// 旧字段名result兜底
	legacy := []byte(`{"command_id":"cmd-2","status":"success","result":{"temp":88}}`)
	var legacyReq ResultReportRequest
	if err := json.Unmarshal(legacy, &legacyReq); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if legacyReq.Payload()["temp"] != float64(88) {
		t.Errorf("Payload()[temp] = %v, want 88", legacyReq.Payload()["temp"])
	}

	// 两者都有时result_payload优先
	both := ResultReportRequest{
		ResultPayload: map[string]interface{}{"src": "new"},
		Result:        map[string]interface{}{"src": "old"},
	}
	if both.Payload()["src"] != "new" {
		t.Errorf("Payload()[src] = %v, want new", both.Payload()["src"])
	}
}

func TestResultReportRequestReportedAt(t *testing.T) {
	now := time.Date(2026, 3, 26, 12, 0, 0, 0, time.UTC)

	req := ResultReportRequest{ResultAt: "2026-03-26T10:30:00Z"}
	want := time.Date(2026, 3, 26, 10, 30, 0, 0, time.UTC)
	if got := req.ReportedAt(now); !got.Equal(want) {
		t.Errorf("ReportedAt() = %v, want %v", got, want)
	}

	// 缺省或解析失败回退服务端时间
	if got := (&ResultReportRequest{}).ReportedAt(now); !got.Equal(now) {
		t.Errorf("ReportedAt() = %v, want %v", got, now)
	}
	if got := (&ResultReportRequest{ResultAt: "not-a-time"}).ReportedAt(now); !got.Equal(now) {
		t.Errorf("ReportedAt() = %v, want %v", got, now)
	}
}
