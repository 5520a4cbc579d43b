package api

import (
	"testing"
	"time"
)

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want int
	}{
		{name: "unset", val: "", want: 7},
		{name: "valid", val: "12", want: 12},
		{name: "garbage", val: "abc", want: 7},
		{name: "zero", val: "0", want: 7},
		{name: "negative", val: "-3", want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRISM_TEST_INT", tt.val)
			if got := envInt("PRISM_TEST_INT", 7); got != tt.want {
				t.Fatalf("envInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEnvDur(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want time.Duration
	}{
		{name: "unset", val: "", want: time.Second},
		{name: "valid", val: "250ms", want: 250 * time.Millisecond},
		{name: "zero allowed", val: "0s", want: 0},
		{name: "garbage", val: "soon", want: time.Second},
		{name: "negative", val: "-1s", want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRISM_TEST_DUR", tt.val)
			if got := envDur("PRISM_TEST_DUR", time.Second); got != tt.want {
				t.Fatalf("envDur = %v, want %v", got, tt.want)
			}
		})
	}
}
