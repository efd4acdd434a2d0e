package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the first element of a session-framing envelope array.
type Kind string

const (
	KindNegOpen  Kind = "NEG-OPEN"
	KindNegMsg   Kind = "NEG-MSG"
	KindNegErr   Kind = "NEG-ERR"
	KindNegClose Kind = "NEG-CLOSE"
	KindNotice   Kind = "NOTICE"
	KindReq      Kind = "REQ"
	KindEvent    Kind = "EVENT"
	KindEOSE     Kind = "EOSE"
	KindClose    Kind = "CLOSE"
	KindOK       Kind = "OK"
)

// Envelope is a parsed JSON array envelope: the discriminator plus the
// remaining elements, still raw, so each frame type can unmarshal only the
// fields it cares about.
type Envelope struct {
	Kind Kind
	Rest []json.RawMessage
}

// ParseEnvelope decodes a single JSON array frame off the wire.
func ParseEnvelope(data []byte) (Envelope, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Envelope{}, fmt.Errorf("session: malformed envelope: %w", err)
	}
	if len(parts) == 0 {
		return Envelope{}, fmt.Errorf("session: empty envelope")
	}
	var kind string
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return Envelope{}, fmt.Errorf("session: envelope kind is not a string: %w", err)
	}
	return Envelope{Kind: Kind(kind), Rest: parts[1:]}, nil
}

func decodeRawString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("session: expected string field: %w", err)
	}
	return s, nil
}

// idSizeHint is the optional trailing {"idSize": n} object on NEG-OPEN.
type idSizeHint struct {
	IDSize int `json:"idSize"`
}

// BuildNegOpen builds a ["NEG-OPEN", sub, filter, init_hex] envelope, adding
// the optional idSize hint object when idSize > 0.
func BuildNegOpen(sub string, filter Filter, initHex string, idSize int) ([]byte, error) {
	arr := []any{KindNegOpen, sub, filter, initHex}
	if idSize > 0 {
		arr = append(arr, idSizeHint{IDSize: idSize})
	}
	return json.Marshal(arr)
}

// BuildNegMsg builds a ["NEG-MSG", sub, msg_hex] envelope.
func BuildNegMsg(sub, msgHex string) ([]byte, error) {
	return json.Marshal([]any{KindNegMsg, sub, msgHex})
}

// BuildNegClose builds a ["NEG-CLOSE", sub] envelope.
func BuildNegClose(sub string) ([]byte, error) {
	return json.Marshal([]any{KindNegClose, sub})
}

// BuildReq builds a ["REQ", sub, filter] envelope for the companion fetch
// workflow (e.g. retrieving need_ids after a sync).
func BuildReq(sub string, filter Filter) ([]byte, error) {
	return json.Marshal([]any{KindReq, sub, filter})
}

// BuildClose builds a ["CLOSE", sub] envelope, ending a REQ subscription.
func BuildClose(sub string) ([]byte, error) {
	return json.Marshal([]any{KindClose, sub})
}

// BuildEvent builds an ["EVENT", event] envelope used to publish.
func BuildEvent(ev Event) ([]byte, error) {
	return json.Marshal([]any{KindEvent, ev})
}

// ParseNegMsg extracts (sub, msg_hex) from a NEG-MSG envelope.
func ParseNegMsg(env Envelope) (sub, msgHex string, err error) {
	if env.Kind != KindNegMsg || len(env.Rest) < 2 {
		return "", "", fmt.Errorf("session: not a NEG-MSG envelope")
	}
	if sub, err = decodeRawString(env.Rest[0]); err != nil {
		return "", "", err
	}
	if msgHex, err = decodeRawString(env.Rest[1]); err != nil {
		return "", "", err
	}
	return sub, msgHex, nil
}

// ParseNegErr extracts (sub, code, details) from a NEG-ERR envelope. The
// code is the text before the first colon and details is the trimmed text
// after it, matching the wire convention in the framing table.
func ParseNegErr(env Envelope) (sub, code, details string, err error) {
	if env.Kind != KindNegErr || len(env.Rest) < 2 {
		return "", "", "", fmt.Errorf("session: not a NEG-ERR envelope")
	}
	if sub, err = decodeRawString(env.Rest[0]); err != nil {
		return "", "", "", err
	}
	message, err := decodeRawString(env.Rest[1])
	if err != nil {
		return "", "", "", err
	}
	if i := strings.Index(message, ":"); i >= 0 {
		return sub, message[:i], strings.TrimSpace(message[i+1:]), nil
	}
	return sub, message, "", nil
}

// ParseNotice extracts the text from a NOTICE envelope.
func ParseNotice(env Envelope) (text string, err error) {
	if env.Kind != KindNotice || len(env.Rest) < 1 {
		return "", fmt.Errorf("session: not a NOTICE envelope")
	}
	return decodeRawString(env.Rest[0])
}

// IsNegentropyNotice reports whether a NOTICE's text should be treated as a
// session-fatal error per the framing table (case-insensitive substring
// match on "negentropy").
func IsNegentropyNotice(text string) bool {
	return strings.Contains(strings.ToLower(text), "negentropy")
}

// ParseEvent extracts (sub, event) from an EVENT envelope delivered in
// response to a REQ.
func ParseEvent(env Envelope) (sub string, ev Event, err error) {
	if env.Kind != KindEvent || len(env.Rest) < 2 {
		return "", Event{}, fmt.Errorf("session: not an EVENT envelope")
	}
	if sub, err = decodeRawString(env.Rest[0]); err != nil {
		return "", Event{}, err
	}
	if err = json.Unmarshal(env.Rest[1], &ev); err != nil {
		return "", Event{}, fmt.Errorf("session: malformed event payload: %w", err)
	}
	return sub, ev, nil
}

// ParseEOSE extracts the subscription id from an EOSE envelope.
func ParseEOSE(env Envelope) (sub string, err error) {
	if env.Kind != KindEOSE || len(env.Rest) < 1 {
		return "", fmt.Errorf("session: not an EOSE envelope")
	}
	return decodeRawString(env.Rest[0])
}

// ParseOK extracts (eventID, accepted, message) from an OK envelope
// acknowledging a published event.
func ParseOK(env Envelope) (eventID string, accepted bool, message string, err error) {
	if env.Kind != KindOK || len(env.Rest) < 3 {
		return "", false, "", fmt.Errorf("session: not an OK envelope")
	}
	if eventID, err = decodeRawString(env.Rest[0]); err != nil {
		return "", false, "", err
	}
	if err = json.Unmarshal(env.Rest[1], &accepted); err != nil {
		return "", false, "", fmt.Errorf("session: malformed OK accepted flag: %w", err)
	}
	if message, err = decodeRawString(env.Rest[2]); err != nil {
		return "", false, "", err
	}
	return eventID, accepted, message, nil
}
