package callservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

const defaultVoiceID = "default"

// Payload formats accepted by the calling service.
const (
	FormatCamel = "camel"
	FormatSnake = "snake"
)

// Request is a start-call request. It accepts the camelCase and snake_case
// field names used by different dashboard versions.
type Request struct {
	PhoneNumber  string
	ProspectName string
	PromptID     string
	VoiceID      string
}

// UnmarshalJSON resolves field aliases in priority order:
// phoneNumber|phone_number, prospectName|name, promptId|documentId|prompt_id,
// voiceId|voice_id. Numbers are kept in their JSON spelling; null, "",
// false and 0 count as absent so the next alias is tried.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		PhoneNumber  json.RawMessage `json:"phoneNumber"`
		PhoneNumber2 json.RawMessage `json:"phone_number"`
		ProspectName json.RawMessage `json:"prospectName"`
		Name         json.RawMessage `json:"name"`
		PromptID     json.RawMessage `json:"promptId"`
		DocumentID   json.RawMessage `json:"documentId"`
		PromptID2    json.RawMessage `json:"prompt_id"`
		VoiceID      json.RawMessage `json:"voiceId"`
		VoiceID2     json.RawMessage `json:"voice_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if r.PhoneNumber, err = firstPresent(alias{"phoneNumber", raw.PhoneNumber}, alias{"phone_number", raw.PhoneNumber2}); err != nil {
		return err
	}
	if r.ProspectName, err = firstPresent(alias{"prospectName", raw.ProspectName}, alias{"name", raw.Name}); err != nil {
		return err
	}
	if r.PromptID, err = firstPresent(alias{"promptId", raw.PromptID}, alias{"documentId", raw.DocumentID}, alias{"prompt_id", raw.PromptID2}); err != nil {
		return err
	}
	if r.VoiceID, err = firstPresent(alias{"voiceId", raw.VoiceID}, alias{"voice_id", raw.VoiceID2}); err != nil {
		return err
	}
	return nil
}

type alias struct {
	name string
	raw  json.RawMessage
}

// firstPresent returns the first alias holding a non-empty scalar.
func firstPresent(aliases ...alias) (string, error) {
	for _, a := range aliases {
		v, err := scalarString(a.raw)
		if err != nil {
			return "", fmt.Errorf("%s: %w", a.name, err)
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// scalarString renders a JSON string, number or boolean as text. Missing,
// null, "", false and numeric zero yield "".
func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		if x {
			return "true", nil
		}
		return "", nil
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return "", nil
		}
		return x.String(), nil
	default:
		return "", errors.New("must be a string or number")
	}
}

// ValidationError reports a missing request field. Its message is safe to
// return to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks the fields required by the given payload format.
func (r Request) Validate(format string) error {
	if format == FormatSnake {
		if r.PhoneNumber == "" || r.ProspectName == "" || r.PromptID == "" {
			return &ValidationError{Message: "Missing required fields: phoneNumber, prospectName, and promptId are required"}
		}
		return nil
	}
	if r.PhoneNumber == "" {
		return &ValidationError{Message: "phoneNumber is required"}
	}
	if r.PromptID == "" {
		return &ValidationError{Message: "promptId is required"}
	}
	return nil
}

// camelPayload is the body sent to the calling service in camel format.
type camelPayload struct {
	PhoneNumber  string `json:"phoneNumber"`
	ProspectName string `json:"prospectName"`
	PromptID     string `json:"promptId"`
	VoiceID      string `json:"voiceId"`
}

// snakePayload is the body sent to the calling service in snake format.
type snakePayload struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	PromptID    string `json:"prompt_id"`
	VoiceID     string `json:"voice_id"`
}

// payload renders r in the given wire format. The snake format always
// requests the default voice.
func (r Request) payload(format string) any {
	if format == FormatSnake {
		return snakePayload{
			PhoneNumber: r.PhoneNumber,
			Name:        r.ProspectName,
			PromptID:    r.PromptID,
			VoiceID:     defaultVoiceID,
		}
	}
	voice := r.VoiceID
	if voice == "" {
		voice = defaultVoiceID
	}
	return camelPayload{
		PhoneNumber:  r.PhoneNumber,
		ProspectName: r.ProspectName,
		PromptID:     r.PromptID,
		VoiceID:      voice,
	}
}

// Response is the calling service's reply: its status code and JSON body.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// NonJSONError is returned when an upstream body cannot be parsed as JSON.
type NonJSONError struct {
	StatusCode int
	Raw        string
}

func (e *NonJSONError) Error() string {
	return fmt.Sprintf("upstream returned non-JSON body (HTTP %d)", e.StatusCode)
}

// Snippet returns at most n bytes of the raw body, cut back to the start
// of a rune so the result stays valid UTF-8.
func (e *NonJSONError) Snippet(n int) string {
	if len(e.Raw) <= n {
		return e.Raw
	}
	for n > 0 && !utf8.RuneStart(e.Raw[n]) {
		n--
	}
	return e.Raw[:n]
}

// AsNonJSON unwraps err to a *NonJSONError.
func AsNonJSON(err error) (*NonJSONError, bool) {
	var nj *NonJSONError
	ok := errors.As(err, &nj)
	return nj, ok
}

// Result is the outcome of an outbound call trigger.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
