package sonar

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// APIError is a received remote reply with a failure status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sonar returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("sonar returned status %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Message json.RawMessage `json:"message"`
	} `json:"error"`
}

// FlattenMessage extracts the error envelope {"error":{"message":...}} and
// flattens the message into a single comma-joined string. The message may be
// a plain string, an array of strings, or an array mixing strings with
// objects whose values hold validation errors keyed by field. Returns the
// empty string when no envelope is present.
func FlattenMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error.Message) == 0 {
		return ""
	}
	return flattenValue(env.Error.Message)
}

func flattenValue(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) == nil {
		parts := make([]string, 0, len(arr))
		for _, el := range arr {
			if v := flattenValue(el); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ", ")
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(obj))
		for _, k := range keys {
			if v := flattenValue(obj[k]); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ", ")
	}

	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}

	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return strconv.FormatBool(b)
	}

	return ""
}
