package timerhubws

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

// Inbound message types carried in the {"data":{"type":...}} envelope.
const (
	MsgPing        = "ping"
	MsgUpdateTimer = "updateTimer"
	MsgStopTimer   = "stopTimer"
)

// Outbound message types.
const (
	MsgPong         = "pong"
	MsgTimerUpdated = "timerUpdated"
	MsgTimerRemoved = "timerRemoved"
)

// Frame is a parsed inbound message. Raw holds the full data object so the
// per-type handler can unmarshal its own fields.
type Frame struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// TimerPayload is the timer object of an updateTimer message. Name and the
// duration fields are pointers so an omitted field retains the stored value;
// endTime is overwritten unconditionally since pausing must clear it.
type TimerPayload struct {
	ID                string  `json:"id"`
	UserID            string  `json:"userId,omitempty"`
	Name              *string `json:"name,omitempty"`
	TotalDuration     *int64  `json:"totalDuration,omitempty"`
	RemainingDuration *int64  `json:"remainingDuration,omitempty"`
	EndTime           *int64  `json:"endTime,omitempty"`
}

// UpdateTimerRequest is the payload of an updateTimer message. A nil
// ShareWith leaves sharing untouched; an empty list unshares everyone.
type UpdateTimerRequest struct {
	Timer     TimerPayload `json:"timer"`
	ShareWith *[]string    `json:"shareWith,omitempty"`
}

// StopTimerRequest is the payload of a stopTimer message.
type StopTimerRequest struct {
	TimerID string `json:"timerId"`
}

// TimerState is the full timer snapshot pushed to recipients.
type TimerState struct {
	ID                string `json:"id"`
	UserID            string `json:"userId"`
	Name              string `json:"name"`
	TotalDuration     int64  `json:"totalDuration"`
	RemainingDuration int64  `json:"remainingDuration"`
	EndTime           *int64 `json:"endTime"`
}

// ParseEnvelope parses the inbound transport envelope.
func ParseEnvelope(body string) (*Frame, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("envelope missing data")
	}

	var frame Frame
	if err := json.Unmarshal(envelope.Data, &frame); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	frame.Raw = envelope.Data
	return &frame, nil
}

// PongMessage returns a pong message, echoed to the sender only.
func PongMessage() []byte {
	b, _ := json.Marshal(map[string]string{"type": MsgPong})
	return b
}

// TimerUpdatedMessage returns a timerUpdated message with the full snapshot.
func TimerUpdatedMessage(timer timerdao.Timer) ([]byte, error) {
	b, err := json.Marshal(struct {
		Type  string     `json:"type"`
		Timer TimerState `json:"timer"`
	}{
		Type: MsgTimerUpdated,
		Timer: TimerState{
			ID:                timer.ID,
			UserID:            timer.OwnerUserID,
			Name:              timer.Name,
			TotalDuration:     timer.TotalMs,
			RemainingDuration: timer.RemainingMs,
			EndTime:           timer.EndTime,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling timerUpdated message: %w", err)
	}
	return b, nil
}

// TimerRemovedMessage returns a timerRemoved message so clients drop the timer.
func TimerRemovedMessage(timerID string) []byte {
	b, _ := json.Marshal(map[string]string{
		"type":    MsgTimerRemoved,
		"timerId": timerID,
	})
	return b
}

// OkResponse is the uniform transport response. The handler always reports
// success to the gateway; rejections and internal failures are observable
// only through logs and the absence of a broadcast. Clients depend on this
// contract, so it must not be tightened to real status codes.
func OkResponse() events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		IsBase64Encoded: false,
		StatusCode:      200,
		Headers: map[string]string{
			"Access-Control-Allow-Origin": "*",
			"Content-Type":                "application/json",
		},
		Body: "{}",
	}
}
