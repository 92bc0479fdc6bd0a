package discovery

import (
	"context"
	"reflect"
	"testing"
)

func TestTXT(t *testing.T) {
	got := TXT(map[string]string{"path": "/", "camera": "sim"})
	want := []string{"camera=sim", "path=/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TXT = %v, want %v", got, want)
	}
	if len(TXT(nil)) != 0 {
		t.Error("TXT(nil) should be empty")
	}
}

func TestAdvertise_InvalidPort(t *testing.T) {
	if err := Advertise(context.Background(), "SnapGo", 0, nil); err == nil {
		t.Fatal("expected error for port 0")
	}
}
