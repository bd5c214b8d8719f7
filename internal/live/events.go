// ABOUTME: Duplex channel event type definitions
// ABOUTME: Defines the setup handshake and inbound server event shapes
package live

// Setup is sent once when the channel opens. It carries the fixed system
// instruction and the requested response modality for the session.
type Setup struct {
	ClientName        string `json:"client_name"`
	ClientVersion     string `json:"client_version"`
	Model             string `json:"model,omitempty"`
	SystemInstruction string `json:"system_instruction"`
	ResponseModality  string `json:"response_modality"`
	Voice             string `json:"voice,omitempty"`
	InputSampleRate   int    `json:"input_sample_rate"`
	OutputSampleRate  int    `json:"output_sample_rate"`
}

// ModalityAudio requests spoken responses.
const ModalityAudio = "audio"

// Transcription is a partial transcript delta for the active turn.
type Transcription struct {
	Text string `json:"text"`
}

// ModelTurn carries one inline audio chunk of the model's spoken reply.
type ModelTurn struct {
	AudioData []byte `json:"audioData"`
	MIMEType  string `json:"mimeType"`
}

// ServerEvent is one inbound event from the duplex channel. Exactly the
// recognized fields below are acted on; anything else in the payload is
// ignored.
type ServerEvent struct {
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
	ModelTurn           *ModelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

// Empty reports whether the event carries none of the recognized kinds.
func (e *ServerEvent) Empty() bool {
	return e.InputTranscription == nil &&
		e.OutputTranscription == nil &&
		e.ModelTurn == nil &&
		!e.TurnComplete &&
		!e.Interrupted
}
