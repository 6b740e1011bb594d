package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ojfbot/daily-logger/internal/stale"
)

// fencedJSON matches a fenced block whose opening and closing fences sit on
// their own lines. Backticks inside JSON strings never start a line, since
// newlines in strings are escaped.
var fencedJSON = regexp.MustCompile("(?s)(?:^|\n)```(?:json)?[ \t]*\n(.*?)\n[ \t]*```[ \t]*(?:\n|$)")

// extractJSON returns the JSON payload of a model reply: the first fenced
// block if present, otherwise the outermost bracketed span.
func extractJSON(reply string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	start := strings.IndexAny(reply, "[{")
	if start < 0 {
		return "", false
	}
	closer := "]"
	if reply[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(reply, closer)
	if end < start {
		return "", false
	}
	return reply[start : end+1], true
}

func decode(reply string) (any, error) {
	payload, ok := extractJSON(reply)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON in reply", ErrSchema)
	}
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return v, nil
}

// parseDocEdits accepts a top-level array; entries failing the schema are
// dropped individually. dropped counts them.
func parseDocEdits(reply string) (edits []DocEdit, dropped int, err error) {
	v, err := decode(reply)
	if err != nil {
		return nil, 0, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, 0, fmt.Errorf("%w: expected an array of edits", ErrSchema)
	}

	schema, err := schemaFor(docEditSchema)
	if err != nil {
		return nil, 0, err
	}

	for _, item := range items {
		if err := schema.Validate(item); err != nil {
			dropped++
			continue
		}
		var edit DocEdit
		if err := remarshal(item, &edit); err != nil || edit.EndLine < edit.StartLine {
			dropped++
			continue
		}
		edit.Confidence = stale.ParseConfidence(string(edit.Confidence))
		edits = append(edits, edit)
	}
	return edits, dropped, nil
}

func parseTagVerdict(reply string) (TagVerdict, error) {
	v, err := decode(reply)
	if err != nil {
		return TagVerdict{}, err
	}

	schema, err := schemaFor(tagVerdictSchema)
	if err != nil {
		return TagVerdict{}, err
	}
	if err := schema.Validate(v); err != nil {
		return TagVerdict{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var verdict TagVerdict
	if err := remarshal(v, &verdict); err != nil {
		return TagVerdict{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	verdict.Confidence = stale.ParseConfidence(string(verdict.Confidence))
	return verdict, nil
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
