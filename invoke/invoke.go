// Package invoke defines the wire record exchanged between communicators.
//
// An Invoke is the "envelope" for every remote function call. It has two
// variants sharing one uid-correlated record:
//
//   - Function: carries a listener path and the encoded arguments.
//   - Return:   carries the outcome (success flag + value) for the same uid.
//
// The variant is distinguished structurally — a listener marks a function
// record, a success flag marks a return record — so a decoder never needs
// out-of-band type information.
package invoke

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Invoke carries the data for a single remote call or its return.
//
//   - Function variant: Listener is the dot-separated member path on the
//     remote provider (e.g. "math.add"), Parameters holds the encoded
//     arguments, Success is absent.
//   - Return variant: Success reports the outcome, Value holds the result
//     (or an ErrorValue descriptor when Success is false), Listener is empty.
type Invoke struct {
	UID        uint32          `json:"uid"`
	Listener   string          `json:"listener,omitempty"`
	Parameters []Parameter     `json:"parameters,omitempty"`
	Success    *bool           `json:"success,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// NewFunction builds a function-variant record for the given listener path.
// The uid is assigned later by the sending communicator.
func NewFunction(listener string, params ...any) (*Invoke, error) {
	if listener == "" {
		return nil, fmt.Errorf("invoke: listener path must not be empty")
	}
	encoded := make([]Parameter, 0, len(params))
	for i, p := range params {
		ep, err := EncodeParameter(p)
		if err != nil {
			return nil, fmt.Errorf("invoke: encode parameter %d for %q: %w", i, listener, err)
		}
		encoded = append(encoded, ep)
	}
	return &Invoke{Listener: listener, Parameters: encoded}, nil
}

// NewReturn builds a successful return record for uid. The value is encoded
// with the wire encoder; a nil value becomes JSON null.
func NewReturn(uid uint32, value any) (*Invoke, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("invoke: encode return value for uid %d: %w", uid, err)
	}
	success := true
	return &Invoke{UID: uid, Success: &success, Value: raw}, nil
}

// NewFailure builds a failure return record for uid carrying the error's
// wire descriptor. Descriptor encoding cannot fail.
func NewFailure(uid uint32, err error) *Invoke {
	raw, marshalErr := json.Marshal(Describe(err))
	if marshalErr != nil {
		// ErrorValue is three plain strings; this cannot happen.
		raw = []byte(`{"name":"Error","message":"unencodable error"}`)
	}
	success := false
	return &Invoke{UID: uid, Success: &success, Value: raw}
}

// IsFunction reports whether inv is the function variant.
func (inv *Invoke) IsFunction() bool {
	return inv.Listener != ""
}

// IsReturn reports whether inv is the return variant.
func (inv *Invoke) IsReturn() bool {
	return inv.Success != nil
}

// Failed reports whether inv is a failure return.
func (inv *Invoke) Failed() bool {
	return inv.Success != nil && !*inv.Success
}

// FailureValue decodes the error descriptor out of a failure return.
func (inv *Invoke) FailureValue() (ErrorValue, bool) {
	if !inv.Failed() {
		return ErrorValue{}, false
	}
	var ev ErrorValue
	if err := json.Unmarshal(inv.Value, &ev); err != nil {
		// A failure return with an undecodable descriptor still fails the
		// call; surface what we can.
		return ErrorValue{Name: remoteErrorName, Message: string(inv.Value)}, true
	}
	return ev, true
}

// Parameter is the wire form of one argument: either a plain value encoded
// by the surrounding serializer, or the serializable sub-variant
// {"type":"serializable","value":"..."} for values that only travel as a
// string rendering.
type Parameter struct {
	Raw json.RawMessage
}

// serializableEnvelope is the wire shape of the string sub-variant.
type serializableEnvelope struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// EncodeParameter inspects v and picks the wire form. Values that round-trip
// through the wire encoder unchanged are sent verbatim; values whose only
// faithful rendering is an explicit string form (TextMarshaler without a
// JSON marshaler of its own) use the serializable sub-variant.
func EncodeParameter(v any) (Parameter, error) {
	if tm, ok := v.(encoding.TextMarshaler); ok {
		if _, isJSON := v.(json.Marshaler); !isJSON {
			text, err := tm.MarshalText()
			if err != nil {
				return Parameter{}, err
			}
			raw, err := json.Marshal(serializableEnvelope{Type: "serializable", Value: string(text)})
			if err != nil {
				return Parameter{}, err
			}
			return Parameter{Raw: raw}, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Parameter{}, err
	}
	return Parameter{Raw: raw}, nil
}

// Decode unmarshals the parameter into out, unwrapping the serializable
// sub-variant transparently.
func (p Parameter) Decode(out any) error {
	var env serializableEnvelope
	if err := json.Unmarshal(p.Raw, &env); err == nil && env.Type == "serializable" {
		if tu, ok := out.(encoding.TextUnmarshaler); ok {
			return tu.UnmarshalText([]byte(env.Value))
		}
		quoted, err := json.Marshal(env.Value)
		if err != nil {
			return err
		}
		return json.Unmarshal(quoted, out)
	}
	return json.Unmarshal(p.Raw, out)
}

// MarshalJSON emits the raw wire bytes.
func (p Parameter) MarshalJSON() ([]byte, error) {
	if p.Raw == nil {
		return []byte("null"), nil
	}
	return p.Raw, nil
}

// UnmarshalJSON captures the raw wire bytes for later decoding against the
// callee's parameter type.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	p.Raw = append(p.Raw[:0], data...)
	return nil
}
