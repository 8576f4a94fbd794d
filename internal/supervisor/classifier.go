package supervisor

import "encoding/json"

// classify reports whether line parses as a JSON value: stdout that
// parses as JSON is treated as a structured log, non-JSON stdout is
// logged as plain text. Partial JSON split across reads is not
// reassembled — it is treated as plain text
func classify(line []byte) bool {
	return json.Valid(line)
}
