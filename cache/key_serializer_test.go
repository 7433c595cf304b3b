package cache

import (
	"strings"
	"testing"
	"time"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

type sortedChannels []string

func (s sortedChannels) CanonicalKey() string {
	return "channels=" + strings.Join(s, "|")
}

func TestDefaultKeySerializer_BasicTypes(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name   string
		method string
		args   []any
		want   string
	}{
		{name: "no args", method: "OrderCards", args: []any{}, want: "OrderCards"},
		{name: "single int", method: "OrderCard", args: []any{501}, want: joinWithSeparator("OrderCard", "501")},
		{
			name:   "multiple basic types",
			method: "OrderCards",
			args:   []any{2, "completed", true, 12.5},
			want:   joinWithSeparator("OrderCards", "2", "completed", "true", "12.5"),
		},
		{
			name:   "string with separator chars",
			method: "Search",
			args:   []any{"table:T07"},
			want:   joinWithSeparator("Search", "table:T07"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.method, tt.args...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_NilAndCollections(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name string
		arg  any
		want string
	}{
		{name: "nil interface", arg: nil, want: "nil"},
		{name: "nil pointer", arg: (*int)(nil), want: "nil"},
		{name: "nil slice", arg: ([]int)(nil), want: "slice:nil"},
		{name: "nil map", arg: (map[string]int)(nil), want: "map:nil"},
		{name: "empty slice", arg: []int{}, want: "slice[0]:{}"},
		{name: "int slice", arg: []int64{501, 502}, want: "slice[2]:{501,502}"},
		{name: "nested slice", arg: [][]int{{1, 2}, {3}}, want: "slice[2]:{slice[2]:{1,2},slice[1]:{3}}"},
		{name: "array", arg: [2]string{"dine-in", "delivery"}, want: "array[2]:{dine-in,delivery}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey("M", tt.arg)
			want := joinWithSeparator("M", tt.want)
			if got != want {
				t.Errorf("SerializeKey() = %v, want %v", got, want)
			}
		})
	}
}

func TestDefaultKeySerializer_MapsAreOrderIndependent(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	a := map[string]bool{}
	a["delivery"] = true
	a["dine-in"] = true
	a["takeaway"] = false

	b := map[string]bool{}
	b["takeaway"] = false
	b["dine-in"] = true
	b["delivery"] = true

	keyA := serializer.SerializeKey("Channels", a)
	keyB := serializer.SerializeKey("Channels", b)
	if keyA != keyB {
		t.Fatalf("expected equal keys, got %q and %q", keyA, keyB)
	}

	want := joinWithSeparator("Channels", "map[3]:{delivery=true,dine-in=true,takeaway=false}")
	if keyA != want {
		t.Errorf("SerializeKey() = %v, want %v", keyA, want)
	}
}

func TestDefaultKeySerializer_Structs(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	type scope struct {
		Role   string
		UserID int64
		secret string
	}

	got := serializer.SerializeKey("Scope", scope{Role: "staff", UserID: 7, secret: "x"})
	want := joinWithSeparator("Scope", "struct:{Role:staff,UserID:7}")
	if got != want {
		t.Errorf("SerializeKey() = %v, want %v", got, want)
	}
}

func TestDefaultKeySerializer_CanonicalizerAndTime(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	got := serializer.SerializeKey("Filter", sortedChannels{"delivery", "dine-in"})
	if want := joinWithSeparator("Filter", "canon:channels=delivery|dine-in"); got != want {
		t.Errorf("SerializeKey() = %v, want %v", got, want)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	got = serializer.SerializeKey("Since", at, 90*time.Second)
	if want := joinWithSeparator("Since", "time:2026-03-01T11:00:00Z", "dur:1m30s"); got != want {
		t.Errorf("SerializeKey() = %v, want %v", got, want)
	}
}

func TestDefaultKeySerializer_FunctionsAndChannels(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	fn := func() {}
	key1 := serializer.SerializeKey("WithFunc", fn)
	key2 := serializer.SerializeKey("WithFunc", fn)
	if key1 != key2 {
		t.Errorf("function serialization should be stable: %v != %v", key1, key2)
	}
	if !strings.HasPrefix(key1, joinWithSeparator("WithFunc", "func")+":") {
		t.Errorf("expected func: prefix, got %v", key1)
	}

	ch := make(chan int)
	if key := serializer.SerializeKey("WithChan", ch); !strings.HasPrefix(key, joinWithSeparator("WithChan", "chan")+":") {
		t.Errorf("expected chan: prefix, got %v", key)
	}
}

func BenchmarkDefaultKeySerializer(b *testing.B) {
	serializer := NewDefaultKeySerializer()
	args := []any{"admin", int64(1), "completed", 1, 20, "", map[string]bool{"dine-in": true}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("OrderCards", args...)
	}
}
