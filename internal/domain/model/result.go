package model

// LogLine is one entry captured from user code.
type LogLine struct {
	Msg     string `json:"msg"`
	Details any    `json:"details,omitempty"`
}

// ExecutionResult is written once by the executor and folded into an event record.
type ExecutionResult struct {
	Success bool      `json:"success"`
	Logs    []LogLine `json:"logs"`
	Reason  string    `json:"reason,omitempty"`
	// TryAgainIn is set on execution rate-limit rejections, in milliseconds.
	TryAgainIn int64 `json:"tryAgainIn,omitempty"`
}

// Meta flattens the result into event meta.
func (r ExecutionResult) Meta() map[string]any {
	result := map[string]any{
		"success": r.Success,
		"logs":    r.Logs,
	}
	if r.Reason != "" {
		result["reason"] = r.Reason
	}
	if r.TryAgainIn > 0 {
		result["tryAgainIn"] = r.TryAgainIn
	}
	if r.Logs == nil {
		result["logs"] = []LogLine{}
	}
	return map[string]any{"result": result}
}

// Failed builds a terminal failure result.
func Failed(reason string, logs ...LogLine) ExecutionResult {
	return ExecutionResult{Success: false, Reason: reason, Logs: logs}
}
