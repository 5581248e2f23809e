package store

import (
	"testing"
)

func TestPredicateMatches(t *testing.T) {
	metadata := map[string]any{
		"category":   "Shipping",
		"source_row": float64(7), // JSON numbers decode as float64
		"created_at": "2024-09-15T10:00:00Z",
	}

	tests := []struct {
		name string
		pred *Predicate
		want bool
	}{
		{"eq match", Cond("category", OpEq, "Shipping"), true},
		{"eq mismatch", Cond("category", OpEq, "Billing"), false},
		{"ne", Cond("category", OpNe, "Billing"), true},
		{"numeric gt", Cond("source_row", OpGt, 5), true},
		{"numeric gt false", Cond("source_row", OpGt, 7), false},
		{"numeric ge", Cond("source_row", OpGe, 7), true},
		{"numeric lt", Cond("source_row", OpLt, 10), true},
		{"numeric le false", Cond("source_row", OpLe, 6), false},
		{"string ordering", Cond("created_at", OpGt, "2024-09-01"), true},
		{"missing field never matches", Cond("absent", OpEq, "x"), false},
		{"missing field ne never matches", Cond("absent", OpNe, "x"), false},
		{
			"and",
			And(Cond("category", OpEq, "Shipping"), Cond("source_row", OpGt, 5)),
			true,
		},
		{
			"and short-circuits",
			And(Cond("category", OpEq, "Billing"), Cond("source_row", OpGt, 5)),
			false,
		},
		{
			"or",
			Or(Cond("category", OpEq, "Billing"), Cond("category", OpEq, "Shipping")),
			true,
		},
		{
			"or all false",
			Or(Cond("category", OpEq, "Billing"), Cond("category", OpEq, "Services")),
			false,
		},
		{
			"nested",
			And(
				Cond("source_row", OpLe, 7),
				Or(Cond("category", OpEq, "Shipping"), Cond("category", OpEq, "Services")),
			),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.pred.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got := tt.pred.Matches(metadata); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.pred, got, tt.want)
			}
		})
	}
}

func TestPredicateValidate(t *testing.T) {
	tests := []struct {
		name    string
		pred    *Predicate
		wantErr bool
	}{
		{"valid leaf", Cond("category", OpEq, "x"), false},
		{"unknown operator", Cond("category", Op("~="), "x"), true},
		{"empty field", Cond("", OpEq, "x"), true},
		{"quoted field rejected", Cond("a'; DROP TABLE r; --", OpEq, "x"), true},
		{"empty and", And(), true},
		{"invalid child", Or(Cond("ok", OpEq, 1), Cond("bad field", OpEq, 2)), true},
		{"valid tree", And(Cond("a", OpGt, 1), Or(Cond("b", OpLt, 2), Cond("c", OpNe, "z"))), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pred.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
