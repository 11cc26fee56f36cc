package perception

import (
	"encoding/json"
	"strings"
)

// DecodeResponse parses one response line.
// A blank line is a valid empty result. A JSON object carrying an "error"
// field is reported as *WorkerError; anything else that is not a detection
// array is a *ParseError.
func DecodeResponse(line string) ([]Detection, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return []Detection{}, nil
	}

	if strings.HasPrefix(line, "{") {
		var obj struct {
			Error *string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &obj); err == nil && obj.Error != nil {
			return nil, &WorkerError{Message: *obj.Error}
		}
	}

	var dets []Detection
	if err := json.Unmarshal([]byte(line), &dets); err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}
	if dets == nil {
		dets = []Detection{}
	}
	return dets, nil
}

// EncodeResponse renders detections as a single response line without the
// trailing newline. Used by stubs and test workers.
func EncodeResponse(dets []Detection) string {
	if len(dets) == 0 {
		return ""
	}
	b, _ := json.Marshal(dets)
	return string(b)
}
