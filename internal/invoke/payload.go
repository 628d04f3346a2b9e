// Package invoke adapts the matching services to invocation payloads: Lambda
// events, SQS batches, gRPC requests and HTTP routes all carry the same
// JSON-shaped requests.
package invoke

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrBadRequest is returned for payloads that cannot be interpreted
var ErrBadRequest = errors.New("bad request")

// lookupField finds key directly in the payload, in a JSON-encoded "body"
// string, or in "queryStringParameters", in that order
func lookupField(payload []byte, key string) gjson.Result {
	if len(payload) == 0 {
		return gjson.Result{}
	}

	if v := gjson.GetBytes(payload, key); v.Exists() && v.Type != gjson.Null {
		return v
	}

	if body := gjson.GetBytes(payload, "body"); body.Type == gjson.String && gjson.Valid(body.Str) {
		if v := gjson.Get(body.Str, key); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}

	return gjson.GetBytes(payload, "queryStringParameters."+key)
}

// positiveInt reads an integer that may be encoded as a JSON number or string
func positiveInt(v gjson.Result, key string) (int64, error) {
	var n int64
	switch v.Type {
	case gjson.Number:
		if v.Num != float64(int64(v.Num)) {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, key)
		}
		n = int64(v.Num)
	case gjson.String:
		parsed, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, key)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %s is required", ErrBadRequest, key)
	}

	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrBadRequest, key)
	}
	return n, nil
}

// IsBatch reports whether the payload is an SQS event
func IsBatch(payload []byte) bool {
	return gjson.GetBytes(payload, "Records").IsArray()
}

// ParseActivityID extracts activity_id from a single-activity payload
func ParseActivityID(payload []byte) (int64, error) {
	if len(payload) > 0 && !gjson.ValidBytes(payload) {
		return 0, fmt.Errorf("%w: payload is not valid JSON", ErrBadRequest)
	}
	return positiveInt(lookupField(payload, "activity_id"), "activity_id")
}

// BatchRecord is one message of an SQS batch
type BatchRecord struct {
	MessageID  string
	ActivityID int64
	Err        error
}

// ParseBatch extracts activity ids from the records of an SQS event. Records
// that cannot be parsed are returned with Err set.
func ParseBatch(payload []byte) []BatchRecord {
	var records []BatchRecord
	gjson.GetBytes(payload, "Records").ForEach(func(_, record gjson.Result) bool {
		r := BatchRecord{MessageID: record.Get("messageId").String()}

		body := record.Get("body").String()
		if !gjson.Valid(body) {
			r.Err = fmt.Errorf("%w: record body is not valid JSON", ErrBadRequest)
		} else {
			r.ActivityID, r.Err = positiveInt(gjson.Get(body, "activity_id"), "activity_id")
		}

		records = append(records, r)
		return true
	})
	return records
}

// ParseLimit extracts an optional backfill limit. Zero means not given.
func ParseLimit(payload []byte) (int, error) {
	if len(payload) > 0 && !gjson.ValidBytes(payload) {
		return 0, fmt.Errorf("%w: payload is not valid JSON", ErrBadRequest)
	}
	v := lookupField(payload, "limit")
	if !v.Exists() || v.Type == gjson.Null {
		return 0, nil
	}
	n, err := positiveInt(v, "limit")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ParseAthleteID extracts athlete_id from a reset payload
func ParseAthleteID(payload []byte) (int64, error) {
	if len(payload) > 0 && !gjson.ValidBytes(payload) {
		return 0, fmt.Errorf("%w: payload is not valid JSON", ErrBadRequest)
	}
	return positiveInt(lookupField(payload, "athlete_id"), "athlete_id")
}
