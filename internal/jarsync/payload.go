package jarsync

import "fmt"

// payload is the decoded receipt body (codec.Preimage.Payload): a
// map[string]interface{} as produced by fxamacker/cbor when unmarshaling
// into that concrete type. These helpers centralize the type assertions
// every handler in dispatch.go otherwise repeats.
type payload map[string]interface{}

func (p payload) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedPayload, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q not a string", ErrMalformedPayload, key)
	}
	return s, nil
}

func (p payload) strOpt(key string) string {
	v, ok := p[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// int64 extracts a CBOR-decoded integer regardless of which concrete Go
// type fxamacker/cbor chose for it (uint64 for non-negative values,
// int64 for negative ones).
func (p payload) int64(key string) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPayload, key)
	}
	switch n := v.(type) {
	case uint64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: %q not an integer", ErrMalformedPayload, key)
	}
}

// devicePin is one entry of a jar.created/jar.member_added "devices" list:
// a device id plus the signing/agreement public keys to pin for it.
type devicePin struct {
	DeviceID string
	SignPub  []byte
	AgreePub []byte
}

// devices extracts the device-pin descriptors at key. A missing key
// yields an empty (not erroring) list, since jar.created's device pins
// are optional; callers that require at least one (jar.member_added)
// check len() themselves.
func (p payload) devices(key string) ([]devicePin, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %q not a list", ErrMalformedPayload, key)
	}
	out := make([]devicePin, 0, len(raw))
	for _, item := range raw {
		m, err := asStringKeyedMap(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %q entry: %v", ErrMalformedPayload, key, err)
		}
		deviceID, ok := m["device_id"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q entry missing device_id", ErrMalformedPayload, key)
		}
		signPub, ok := m["pk_sign"].([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: %q entry missing pk_sign", ErrMalformedPayload, key)
		}
		agreePub, ok := m["pk_agree"].([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: %q entry missing pk_agree", ErrMalformedPayload, key)
		}
		out = append(out, devicePin{DeviceID: deviceID, SignPub: signPub, AgreePub: agreePub})
	}
	return out, nil
}

// asStringKeyedMap normalizes a decoded CBOR map entry. fxamacker/cbor
// decodes a map into map[interface{}]interface{} when the target is
// interface{} (true for any element of a payload list), rather than the
// map[string]interface{} the top-level payload itself gets because its
// static type says so.
func asStringKeyedMap(v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string map key")
			}
			out[ks] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a map")
	}
}

func (p payload) strSlice(key string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %q not a list", ErrMalformedPayload, key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q contains a non-string element", ErrMalformedPayload, key)
		}
		out = append(out, s)
	}
	return out, nil
}
