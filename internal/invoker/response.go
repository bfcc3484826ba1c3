package invoker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pitabwire/wiredriver/model"
)

const maxErrorBodyEcho = 512

// wireResponse is the envelope shared by both protocol levels. W3C remote
// ends nest errors inside value; older ones also put error and message at
// the top level.
type wireResponse struct {
	SessionID string          `json:"sessionId"`
	Value     json.RawMessage `json:"value"`
	Error     string          `json:"error"`
	Message   *string         `json:"message"`
}

type wireError struct {
	Error      string          `json:"error"`
	Message    *string         `json:"message"`
	Stacktrace json.RawMessage `json:"stacktrace"`
	Data       json.RawMessage `json:"data"`
}

type wireFrame struct {
	FileName   string `json:"fileName"`
	MethodName string `json:"methodName"`
	ClassName  string `json:"className"`
	LineNumber any    `json:"lineNumber"`
}

// decodeResponse turns a response body into a result or a typed error. On
// error the result is always empty; status and body live on the error.
func decodeResponse(id model.CommandID, reqURL string, status int, body []byte) (model.ExecutionResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		if status >= http.StatusBadRequest {
			return model.ExecutionResult{}, &model.RemoteError{
				CommandID:  id,
				StatusCode: status,
				Code:       model.CodeUnknownError,
				Message:    http.StatusText(status),
			}
		}
		return model.ExecutionResult{StatusCode: status, Raw: body}, nil
	}

	var env wireResponse
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return model.ExecutionResult{}, &model.ProtocolDecodeError{
			CommandID:  id,
			URL:        reqURL,
			StatusCode: status,
			Body:       truncate(string(trimmed), maxErrorBodyEcho),
			Cause:      err,
		}
	}

	if remote := remoteErrorFrom(id, status, env); remote != nil {
		return model.ExecutionResult{}, remote
	}

	if status >= http.StatusBadRequest {
		return model.ExecutionResult{}, &model.RemoteError{
			CommandID:  id,
			StatusCode: status,
			Code:       model.CodeUnknownError,
			Message:    fmt.Sprintf("HTTP %d: %s", status, truncate(string(trimmed), maxErrorBodyEcho)),
		}
	}

	var value any
	if len(env.Value) > 0 {
		if err := json.Unmarshal(env.Value, &value); err != nil {
			return model.ExecutionResult{}, &model.ProtocolDecodeError{
				CommandID:  id,
				URL:        reqURL,
				StatusCode: status,
				Body:       truncate(string(env.Value), maxErrorBodyEcho),
				Cause:      err,
			}
		}
	}
	result := model.ExecutionResult{StatusCode: status, Value: value, Raw: body, SessionID: env.SessionID}
	if result.SessionID == "" {
		if m, ok := value.(map[string]any); ok {
			result.SessionID, _ = m["sessionId"].(string)
		}
	}
	return result, nil
}

// remoteErrorFrom extracts an error report from the envelope, or returns nil
// if the response carries none. Top-level fields win over nested ones.
func remoteErrorFrom(id model.CommandID, status int, env wireResponse) *model.RemoteError {
	var nested wireError
	if len(env.Value) > 0 && env.Value[0] == '{' {
		_ = json.Unmarshal(env.Value, &nested)
	}

	code := env.Error
	if code == "" {
		code = nested.Error
	}
	if code == "" {
		return nil
	}

	message := code
	switch {
	case env.Message != nil:
		message = *env.Message
	case nested.Message != nil:
		message = *nested.Message
	}

	remote := &model.RemoteError{
		CommandID:  id,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Stacktrace: formatStacktrace(nested.Stacktrace),
	}
	if code == model.CodeUnexpectedAlertOpen {
		remote.AlertText = alertText(nested.Data)
	}
	return remote
}

// formatStacktrace accepts either a newline separated string or a list of
// frame objects.
func formatStacktrace(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return nil
		}
		return strings.Split(text, "\n")
	}

	var frames []json.RawMessage
	if err := json.Unmarshal(raw, &frames); err != nil {
		return nil
	}
	var out []string
	for _, rawFrame := range frames {
		var f wireFrame
		if err := json.Unmarshal(rawFrame, &f); err != nil {
			continue
		}
		file := f.FileName
		if file == "" {
			file = "<anonymous>"
		}
		if line := fmt.Sprint(f.LineNumber); f.LineNumber != nil && line != "" && line != "0" {
			file = file + ":" + line
		}
		method := f.MethodName
		if method == "" {
			method = "<anonymous>"
		}
		if f.ClassName != "" {
			method = f.ClassName + "." + method
		}
		out = append(out, fmt.Sprintf("    at %s (%s)", method, file))
	}
	return out
}

// alertText reads the alert text from either {"text": "..."} or a bare string.
func alertText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Text != "" {
		return obj.Text
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
