package mostro

import (
	"encoding/json"
	"fmt"
)

// ParseMessage decodes a coordinator-published message envelope. Unknown
// categories/actions decode successfully into CategoryUnknown/ActionUnknown
// rather than erroring, so a version-skewed coordinator never blocks the
// client from processing the rest of its inbox (spec §4.F).
func ParseMessage(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse mostro message: %w", err)
	}
	return &m, nil
}

// ParseMessages decodes a JSON array of message envelopes, skipping entries
// that fail to parse at all (malformed JSON) rather than aborting the batch.
func ParseMessages(raw []byte) ([]*Message, []error) {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, []error{fmt.Errorf("parse mostro message batch: %w", err)}
	}
	var msgs []*Message
	var errs []error
	for _, item := range rawItems {
		m, err := ParseMessage(item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, errs
}
