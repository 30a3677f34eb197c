package queue

import "encoding/json"

// MessageVersion is the current replay message schema.
const MessageVersion = 1

// Message asks a worker to replay one staged checklist submission.
type Message struct {
	ChecklistID string `json:"checklistId"`
	AssetID     string `json:"assetId,omitempty"`
	StorageKey  string `json:"storageKey"`
	RequestID   string `json:"requestId"`
	EnqueuedAt  string `json:"enqueuedAt"`
	Version     int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
