package authsession

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FieldErrors maps form fields to the messages the backend reported for them.
// Fields keep the order in which the backend listed them.
type FieldErrors struct {
	fields []string
	byName map[string][]string
}

// Len returns the number of fields with errors.
func (f FieldErrors) Len() int {
	return len(f.fields)
}

// Fields returns field names in backend order.
func (f FieldErrors) Fields() []string {
	out := make([]string, len(f.fields))
	copy(out, f.fields)
	return out
}

// Get returns the messages for field.
func (f FieldErrors) Get(field string) []string {
	msgs := f.byName[field]
	if len(msgs) == 0 {
		return nil
	}
	out := make([]string, len(msgs))
	copy(out, msgs)
	return out
}

// First returns the first message for field, or "".
func (f FieldErrors) First(field string) string {
	if msgs := f.byName[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Add appends msgs to field, registering the field on first use.
func (f *FieldErrors) Add(field string, msgs ...string) {
	if f.byName == nil {
		f.byName = make(map[string][]string)
	}
	if _, ok := f.byName[field]; !ok {
		f.fields = append(f.fields, field)
	}
	f.byName[field] = append(f.byName[field], msgs...)
}

func (f FieldErrors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		msgs := f.byName[field]
		if msgs == nil {
			msgs = []string{}
		}
		val, err := json.Marshal(msgs)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts {"field": ["msg", ...]} and {"field": "msg"}.
func (f *FieldErrors) UnmarshalJSON(data []byte) error {
	return f.decode(data, false)
}

// decode reads a field errors object. When lenient, messages that are not
// strings are kept as their compact JSON text instead of failing the object.
func (f *FieldErrors) decode(data []byte, lenient bool) error {
	*f = FieldErrors{}
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("field errors must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		field, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected field errors key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		msgs, err := decodeMessages(raw)
		if err != nil && lenient {
			msgs, err = stringifyMessages(raw), nil
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
		f.Add(field, msgs...)
	}

	_, err = dec.Token()
	return err
}

func decodeMessages(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, errors.New("messages must be a string or a list of strings")
	}
	return []string{one}, nil
}

func stringifyMessages(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		items = []json.RawMessage{raw}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var msg string
		if err := json.Unmarshal(item, &msg); err == nil {
			out = append(out, msg)
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, item); err != nil {
			out = append(out, string(item))
			continue
		}
		out = append(out, buf.String())
	}
	return out
}

// decodeValidation decodes a 422 body. An undecodable body yields a
// ValidationError with no field errors; a malformed message or field does not
// discard the rest.
func decodeValidation(body []byte) *ValidationError {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &ValidationError{}
	}

	ve := &ValidationError{}
	if len(payload.Message) > 0 {
		if err := json.Unmarshal(payload.Message, &ve.Message); err != nil {
			ve.Message = string(payload.Message)
		}
	}
	if len(payload.Errors) > 0 {
		var fe FieldErrors
		if err := fe.decode(payload.Errors, true); err == nil {
			ve.Errors = fe
		}
	}
	return ve
}
