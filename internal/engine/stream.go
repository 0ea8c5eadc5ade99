package engine

import (
	"encoding/json"
)

// streamLine mirrors the CLI's stream-json output closely enough to pull
// out what the caller needs; unknown fields are ignored.
type streamLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
	Message   struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
	} `json:"message"`
}

// parseMessage decodes one stream-json line. Lines that are not valid
// JSON or carry no type are skipped, not treated as errors.
func parseMessage(line []byte) (Message, bool) {
	var raw streamLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Message{}, false
	}
	if raw.Type == "" {
		return Message{}, false
	}

	msg := Message{
		Type:      raw.Type,
		Subtype:   raw.Subtype,
		SessionID: raw.SessionID,
		IsError:   raw.IsError,
	}

	switch raw.Type {
	case "assistant":
		for _, block := range raw.Message.Content {
			switch block.Type {
			case "text":
				msg.Text += block.Text
			case "tool_use":
				msg.ToolCalls = append(msg.ToolCalls, block.Name)
			}
		}
	case "result":
		msg.Text = raw.Result
		if raw.Subtype != "" && raw.Subtype != "success" {
			msg.IsError = true
		}
	}

	return msg, true
}
