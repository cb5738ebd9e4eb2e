package domain

// Inbound events produced by the execution layer. Payloads are converted to
// these typed forms at the API boundary; nothing untyped reaches the reducers.

// LineEvent is one produced log line for a device.
type LineEvent struct {
	Serial string `json:"serial"`
	Line   string `json:"line"`
}

// ProgressEvent reports incremental progress for a bugreport or file
// transfer. Exactly one of Serial or TraceID addresses the owning task;
// Serial additionally names the device slot to update.
type ProgressEvent struct {
	Serial   string `json:"serial,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	Progress int    `json:"progress"` // 0..100
	Message  string `json:"message,omitempty"`
}

// CompleteResult is the terminal outcome of one device's contribution.
type CompleteResult struct {
	Success    bool   `json:"success"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
}

// Status maps the result onto the device status enum. Cancellation wins over
// the success flag so a cancelled-but-clean shutdown still reads as cancelled.
func (r CompleteResult) Status() TaskStatus {
	switch {
	case r.Cancelled:
		return StatusCancelled
	case r.Success:
		return StatusSuccess
	default:
		return StatusError
	}
}

// CompleteEvent is the terminal outcome for one device's contribution.
type CompleteEvent struct {
	Serial  string         `json:"serial,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
	Result  CompleteResult `json:"result"`
}

// DeviceSummary is the best-effort auxiliary device state reported alongside
// task events. It is not part of the task model.
type DeviceSummary struct {
	Serial  string `json:"serial"`
	State   string `json:"state"` // device, offline, unauthorized, ...
	Model   string `json:"model,omitempty"`
	Product string `json:"product,omitempty"`
}
