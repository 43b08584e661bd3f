package util

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{",, ,", nil},
		{"truncate", []string{"truncate"}},
		{" truncate , create_if_absent ", []string{"truncate", "create_if_absent"}},
		{",truncate,,create_if_absent,", []string{"truncate", "create_if_absent"}},
		{"truncate, TRUNCATE ,create_if_absent,truncate", []string{"truncate", "create_if_absent"}},
		{"Order Lines, order lines", []string{"Order Lines"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SplitCSV(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCSV(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
