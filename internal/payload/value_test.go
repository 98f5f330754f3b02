// internal/payload/value_test.go
package payload

import (
	"encoding/json"
	"testing"
)

func TestMarshalSortedKeys(t *testing.T) {
	v := Object(map[string]Value{
		"zeta":  String("z"),
		"alpha": Int(1),
		"mid":   Bool(true),
	})
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"alpha":1,"mid":true,"zeta":"z"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestMarshalNoHTMLEscaping(t *testing.T) {
	data, err := json.Marshal(String("<a>&</a>"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"<a>&</a>"` {
		t.Errorf("unexpected escaping: %s", data)
	}
}

func TestRoundTrip(t *testing.T) {
	src := `{"items":[1,2,{"name":"x"}],"nested":{"flag":false,"text":"hi"},"none":null}`
	var v Value
	if err := json.Unmarshal([]byte(src), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Kind() != KindObject {
		t.Fatalf("expected object, got kind %d", v.Kind())
	}
	items, ok := v.Field("items")
	if !ok || items.Len() != 3 {
		t.Errorf("expected 3 items, got %d", items.Len())
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if v.Bytes() != len(data) {
		t.Errorf("Bytes() = %d, marshaled length = %d", v.Bytes(), len(data))
	}
}

func TestMapStringsPaths(t *testing.T) {
	v := Object(map[string]Value{
		"url":   String("https://example.com?q=1"),
		"title": String("hello"),
		"list":  Array(String("a"), String("b")),
	})
	var seen []string
	out := v.MapStrings(func(path []string, s string) string {
		if len(path) > 0 && path[len(path)-1] == "url" {
			seen = append(seen, s)
			return "stripped"
		}
		return s
	})
	if len(seen) != 1 {
		t.Fatalf("expected 1 url visit, got %d", len(seen))
	}
	url, _ := out.Field("url")
	if url.StringVal() != "stripped" {
		t.Errorf("url not transformed: %s", url.StringVal())
	}
	title, _ := out.Field("title")
	if title.StringVal() != "hello" {
		t.Errorf("title should be untouched, got %s", title.StringVal())
	}
	// original is untouched
	orig, _ := v.Field("url")
	if orig.StringVal() != "https://example.com?q=1" {
		t.Errorf("source value mutated: %s", orig.StringVal())
	}
}

func TestFromAnyDropsNonFinite(t *testing.T) {
	v, ok := FromAny(map[string]any{
		"ok":  1.5,
		"bad": map[string]any{"inner": "x"},
	})
	if !ok {
		t.Fatal("expected conversion to succeed")
	}
	if v.Len() != 2 {
		t.Errorf("expected 2 fields, got %d", v.Len())
	}
	if _, bad := FromAny(make(chan int)); bad {
		t.Error("expected unsupported type to report false")
	}
}
