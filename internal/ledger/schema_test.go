package ledger

import (
	"errors"
	"testing"

	"github.com/tallyhq/tally/internal/types"
)

func TestItemsSchemaCompiles(t *testing.T) {
	if _, err := compileItemsSchema(); err != nil {
		t.Fatalf("schema failed to compile: %v", err)
	}
}

func TestValidateItems(t *testing.T) {
	schema, err := compileItemsSchema()
	if err != nil {
		t.Fatalf("schema failed to compile: %v", err)
	}

	valid := types.LedgerItem{
		ID:               "bugs_1",
		Message:          "crash on save",
		Status:           types.StatusNew,
		CreatedTimestamp: "2024-06-01T10:00:00Z",
		UpdatedTimestamp: "2024-06-01T10:00:00Z",
		URLs:             []string{"https://example.com/t/1"},
	}

	tests := []struct {
		name   string
		mutate func(*types.LedgerItem)
		ok     bool
	}{
		{"valid item", func(i *types.LedgerItem) {}, true},
		{"nil urls", func(i *types.LedgerItem) { i.URLs = nil }, true},
		{"out-of-range status", func(i *types.LedgerItem) { i.Status = 7 }, false},
		{"empty id", func(i *types.LedgerItem) { i.ID = "" }, false},
		{"empty message", func(i *types.LedgerItem) { i.Message = "" }, false},
		{"date-only timestamp", func(i *types.LedgerItem) { i.UpdatedTimestamp = "2024-06-01" }, false},
		{"relative url", func(i *types.LedgerItem) { i.URLs = []string{"/relative"} }, false},
		{"ftp url", func(i *types.LedgerItem) { i.FileURLs = []string{"ftp://host/f"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid.Clone()
			tt.mutate(&item)
			err := validateItems(schema, []types.LedgerItem{item})
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Error("expected a validation error")
				} else if !errors.Is(err, types.ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
			}
		})
	}
}

func TestValidateItemsEmptyList(t *testing.T) {
	schema, err := compileItemsSchema()
	if err != nil {
		t.Fatalf("schema failed to compile: %v", err)
	}
	if err := validateItems(schema, nil); err != nil {
		t.Errorf("nil items should validate as an empty list: %v", err)
	}
}
