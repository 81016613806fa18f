package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in model reply")

// decodeReply decodes the JSON object in a model reply into v. Models in JSON
// mode usually return the bare object, but some wrap it in a fenced code
// block or surround it with prose, so the outermost {...} span is used.
func decodeReply(content string, v any) error {
	s := strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		if body, _, found := strings.Cut(rest, "```"); found {
			s = strings.TrimSpace(body)
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return errNoJSONObject
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}
