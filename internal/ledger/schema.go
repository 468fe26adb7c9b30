package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tallyhq/tally/internal/types"
)

// itemsSchema is the persistence gate for the items collection: the exact
// shape written to storage, independent of the Go-level Validate methods.
// Nothing reaches PutLedger without passing both.
const itemsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "message", "status", "created_timestamp", "updated_timestamp"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "message": {"type": "string", "minLength": 1},
      "status": {"type": "integer", "enum": [0, 1, 2]},
      "created_timestamp": {"type": "string", "format": "date-time"},
      "updated_timestamp": {"type": "string", "format": "date-time"},
      "urls": {"type": "array", "items": {"type": "string", "pattern": "^https?://"}},
      "file_urls": {"type": "array", "items": {"type": "string", "pattern": "^https?://"}}
    },
    "additionalProperties": false
  }
}`

// compileItemsSchema builds the validator once per Store.
func compileItemsSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(itemsSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse items schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()
	if err := compiler.AddResource("tally://schemas/items.json", doc); err != nil {
		return nil, fmt.Errorf("failed to register items schema: %w", err)
	}
	schema, err := compiler.Compile("tally://schemas/items.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile items schema: %w", err)
	}
	return schema, nil
}

// validateItems round-trips the items through JSON and checks the result
// against the persistence schema. Violations wrap types.ErrValidation.
func validateItems(schema *jsonschema.Schema, items []types.LedgerItem) error {
	if items == nil {
		items = []types.LedgerItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: items are not serializable: %v", types.ErrValidation, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: items are not valid JSON: %v", types.ErrValidation, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: items failed schema validation: %v", types.ErrValidation, err)
	}
	return nil
}
