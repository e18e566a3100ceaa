package models

import (
	"testing"
)

// TestTemperature_String verifies two-decimal formatting across signs
func TestTemperature_String(t *testing.T) {
	tests := []struct {
		name string
		temp Temperature
		want string
	}{
		{name: "positive with fraction", temp: 2550, want: "25.50"},
		{name: "uneven fraction", temp: 2575, want: "25.75"},
		{name: "zero", temp: 0, want: "0.00"},
		{name: "negative", temp: -1025, want: "-10.25"},
		{name: "lower bound", temp: -10000, want: "-100.00"},
		{name: "upper bound", temp: 10000, want: "100.00"},
		{name: "sub-degree negative", temp: -5, want: "-0.05"},
		{name: "single hundredth", temp: 7, want: "0.07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.temp.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestTemperature_Scan covers the source types produced by the driver
func TestTemperature_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     interface{}
		want    Temperature
		wantErr bool
	}{
		{name: "numeric bytes", src: []byte("25.50"), want: 2550},
		{name: "string", src: "-99.99", want: -9999},
		{name: "float64", src: 25.75, want: 2575},
		{name: "int64 degrees", src: int64(30), want: 3000},
		{name: "nil", src: nil, want: 0},
		{name: "garbage", src: []byte("abc"), wantErr: true},
		{name: "unsupported type", src: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var temp Temperature
			err := temp.Scan(tt.src)

			if (err != nil) != tt.wantErr {
				t.Errorf("Scan() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && temp != tt.want {
				t.Errorf("Scan() = %v, want %v", temp, tt.want)
			}
		})
	}
}

// TestTemperature_RoundTrip verifies the Valuer/Scanner pair preserves
// values exactly, the property the fixed-precision type exists for
func TestTemperature_RoundTrip(t *testing.T) {
	for _, temp := range []Temperature{2550, -9999, 0, 10000, -10000, 1} {
		v, err := temp.Value()
		if err != nil {
			t.Fatalf("Value() error = %v", err)
		}

		var back Temperature
		if err := back.Scan([]byte(v.(string))); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if back != temp {
			t.Errorf("round trip = %v, want %v", back, temp)
		}
	}
}

// TestTemperature_JSON checks the wire representation stays two-decimal
func TestTemperature_JSON(t *testing.T) {
	temp := Temperature(2550)
	data, err := temp.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(data) != "25.50" {
		t.Errorf("MarshalJSON() = %v, want %v", string(data), "25.50")
	}

	var back Temperature
	if err := back.UnmarshalJSON([]byte("25.50")); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if back != temp {
		t.Errorf("UnmarshalJSON() = %v, want %v", back, temp)
	}

	if err := back.UnmarshalJSON([]byte(`"-0.25"`)); err != nil {
		t.Fatalf("UnmarshalJSON() quoted error = %v", err)
	}
	if back != -25 {
		t.Errorf("UnmarshalJSON() quoted = %v, want %v", back, Temperature(-25))
	}
}

// TestValidationError tests error handling
func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "value",
		Value:   "abc",
		Message: "invalid temperature format",
	}

	if err.Error() != "invalid temperature format" {
		t.Errorf("Error() = %v, want %v", err.Error(), "invalid temperature format")
	}

	if err.IsTransient() {
		t.Error("ValidationError should not be transient")
	}
}
