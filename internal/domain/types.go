package domain

// SessionState models the hold-to-dictate capture lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateRecording    SessionState = "recording"
	SessionStateTranscribing SessionState = "transcribing"
	SessionStateError        SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonModelLoading        SessionStateReason = "model_loading"
	SessionReasonModelReady          SessionStateReason = "model_ready"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonRecordingStopped    SessionStateReason = "recording_stopped"
	SessionReasonRecordingDiscarded  SessionStateReason = "recording_discarded"
	SessionReasonNoAudio             SessionStateReason = "no_audio"
	SessionReasonNoTranscript        SessionStateReason = "no_transcript"
	SessionReasonTextInserted        SessionStateReason = "text_inserted"
	SessionReasonInsertFailed        SessionStateReason = "insert_failed"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
	SessionReasonChordUpdated        SessionStateReason = "chord_updated"
	SessionReasonChordDisabled       SessionStateReason = "chord_disabled"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeHotkey        ErrorCode = "hotkey"
	ErrorCodeAudioStart    ErrorCode = "audio_start"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeInsertion     ErrorCode = "insertion"
	ErrorCodeRecovery      ErrorCode = "recovery"
	ErrorCodeUpdateCheck   ErrorCode = "update_check"
)

// Status summarizes the current runtime status.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Ready   bool         `json:"ready"`
	Chord   string       `json:"chord"`
	Message string       `json:"message,omitempty"`
}
