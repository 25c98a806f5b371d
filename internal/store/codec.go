package store

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// encodePayload JSON-encodes every value, primitives included.
// Channels, functions, NaN and cyclic pointer graphs fail here.
func encodePayload(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", errors.Wrapf(ErrSerialization, "%v", err)
	}
	return string(data), nil
}

// decodePayload returns the decoded JSON value. Numbers keep their exact text
// as json.Number. Payloads that are not a single JSON document (raw text
// written by another writer) are returned as-is.
func decodePayload(payload string) any {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return payload
	}
	if _, err := dec.Token(); err != io.EOF {
		return payload
	}
	return value
}
