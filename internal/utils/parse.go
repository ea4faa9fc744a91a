package utils

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// RepairJSON returns content as a JSON document. Valid input is returned
// unchanged; anything else (unquoted keys, single quotes, a document cut off
// mid-object) is passed through jsonrepair and the repaired form returned.
// An empty string is treated as an empty object.
func RepairJSON(content string) (json.RawMessage, error) {
	if content == "" {
		return json.RawMessage(`{}`), nil
	}
	if json.Valid([]byte(content)) {
		return json.RawMessage(content), nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("failed to repair JSON: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("repaired JSON is still invalid: %s", TruncateString(repaired, DefaultMaxStringLength))
	}
	return json.RawMessage(repaired), nil
}
