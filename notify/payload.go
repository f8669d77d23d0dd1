package notify

import (
	"strings"

	"workportal/models"
)

// RowsChanged lists the rows a committed write touched.
type RowsChanged struct {
	Channel string
	Keys    []string
}

// EditSignal is the legacy edit_conflict tuple.
type EditSignal struct {
	Key            string
	Field          string
	EditingUser    string
	RequestingUser string
}

// ParseRowsChanged decodes a comma separated list of row keys.
func ParseRowsChanged(channel, payload string) (RowsChanged, error) {
	var keys []string
	for _, k := range strings.Split(payload, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return RowsChanged{}, &models.MalformedNoticeError{Channel: channel, Payload: payload, Reason: "no row keys"}
	}
	return RowsChanged{Channel: channel, Keys: keys}, nil
}

// ParseEditSignal requires exactly four fields.
func ParseEditSignal(channel, payload string) (EditSignal, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 4 {
		return EditSignal{}, &models.MalformedNoticeError{Channel: channel, Payload: payload, Reason: "expected 4 fields"}
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" || parts[1] == "" {
		return EditSignal{}, &models.MalformedNoticeError{Channel: channel, Payload: payload, Reason: "empty row or field"}
	}
	return EditSignal{
		Key:            parts[0],
		Field:          parts[1],
		EditingUser:    parts[2],
		RequestingUser: parts[3],
	}, nil
}
