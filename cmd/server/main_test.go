package main

import (
	"testing"
)

func TestParseExplicit(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]any{}},
		{name: "object", raw: `{"PORT_HTTP":3000,"APP_LIST":"app_one"}`, want: map[string]any{"PORT_HTTP": float64(3000), "APP_LIST": "app_one"}},
		{name: "invalid", raw: `{"PORT_HTTP":`, want: map[string]any{}, wantErr: true},
		{name: "not an object", raw: `[1,2]`, want: map[string]any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExplicit(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("expected %s=%v, got %v", k, v, got[k])
				}
			}
		})
	}
}
