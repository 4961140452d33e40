package market

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTaxonomyMatching(t *testing.T) {
	funds := &FundsError{OwnerID: "a", Amount: 500, Err: errors.New("balance 100")}
	race := &RaceError{Reason: "listing sold"}
	valid := Validationf("bad tier %d", 9)

	tests := []struct {
		name         string
		err          error
		isFunds      bool
		isRace       bool
		isValidation bool
	}{
		{"funds", funds, true, false, false},
		{"race", race, false, true, false},
		{"validation", valid, false, false, true},
		{"wrapped funds", fmt.Errorf("submit offer: %w", funds), true, false, false},
		{"wrapped race", fmt.Errorf("cancel: %w", race), false, true, false},
		{"plain error", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFunds(tt.err); got != tt.isFunds {
				t.Errorf("IsFunds = %v, want %v", got, tt.isFunds)
			}
			if got := IsRace(tt.err); got != tt.isRace {
				t.Errorf("IsRace = %v, want %v", got, tt.isRace)
			}
			if got := IsValidation(tt.err); got != tt.isValidation {
				t.Errorf("IsValidation = %v, want %v", got, tt.isValidation)
			}
		})
	}
}

func TestFundsErrorUnwraps(t *testing.T) {
	inner := errors.New("balance 100")
	err := &FundsError{OwnerID: "a", Amount: 500, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("FundsError should unwrap to its cause")
	}
}
