package capability

import (
	"errors"
	"testing"
)

func TestKindValid(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected bool
	}{
		{KindPowerOutput, true},
		{KindMotor, true},
		{KindServo, true},
		{KindLED, true},
		{KindDigitalInput, true},
		{KindBattery, true},
		{Kind("gpio"), false},
		{Kind(""), false},
	}

	for _, tc := range tests {
		if got := tc.kind.Valid(); got != tc.expected {
			t.Errorf("Kind(%q).Valid() = %v, want %v", tc.kind, got, tc.expected)
		}
	}
}

func TestAllKindsValid(t *testing.T) {
	for _, k := range AllKinds() {
		if !k.Valid() {
			t.Errorf("AllKinds returned invalid kind %q", k)
		}
	}
}

func TestCheckMotorPower(t *testing.T) {
	t.Run("in range", func(t *testing.T) {
		for _, p := range []float64{-1, -0.5, 0, 0.5, 1} {
			if err := CheckMotorPower(0, p); err != nil {
				t.Errorf("CheckMotorPower(0, %g) = %v, want nil", p, err)
			}
		}
	})

	t.Run("out of range", func(t *testing.T) {
		err := CheckMotorPower(2, 1.5)
		if err == nil {
			t.Fatal("expected error for power 1.5")
		}
		var oor *OutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("expected OutOfRangeError, got %T", err)
		}
		if oor.Kind != KindMotor || oor.Channel != 2 || oor.Value != 1.5 {
			t.Errorf("unexpected error fields: %+v", oor)
		}
	})
}

func TestCheckServoPosition(t *testing.T) {
	if err := CheckServoPosition(0, -1); err != nil {
		t.Errorf("position -1 should be valid: %v", err)
	}
	if err := CheckServoPosition(0, -1.01); err == nil {
		t.Error("expected error for position -1.01")
	}
	var oor *OutOfRangeError
	err := CheckServoPosition(3, 7)
	if !errors.As(err, &oor) {
		t.Fatalf("expected OutOfRangeError, got %v", err)
	}
	if oor.Kind != KindServo {
		t.Errorf("expected servo kind, got %q", oor.Kind)
	}
}

func TestOutOfRangeErrorMessage(t *testing.T) {
	err := &OutOfRangeError{Kind: KindMotor, Channel: 1, Value: 2, Min: -1, Max: 1}
	want := "motor channel 1: value 2 out of range [-1, 1]"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
