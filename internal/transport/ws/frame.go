package ws

import "encoding/json"

func marshal(v any) ([]byte, error) {
	switch f := v.(type) {
	case []byte:
		return f, nil
	case json.RawMessage:
		return f, nil
	default:
		return json.Marshal(v)
	}
}
