package embedset

import (
	"slices"
	"testing"
)

func TestNewRecord_KeepsOrderAndDropsDuplicates(t *testing.T) {
	r := NewRecord([]string{"b", "a", "b", "c"}, map[string]any{"a": 1, "b": 2})

	if got := r.Fields(); !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("fields = %v", got)
	}
	if v, ok := r.Get("c"); !ok || v != nil {
		t.Errorf("absent value = %v, %v; want nil, true", v, ok)
	}
	if _, ok := r.Get("z"); ok {
		t.Error("unknown field reported present")
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestRecord_FieldsIsACopy(t *testing.T) {
	r := NewRecord([]string{"a", "b"}, nil)
	f := r.Fields()
	f[0] = "mutated"
	if r.Fields()[0] != "a" {
		t.Error("Fields exposed internal slice")
	}
}

func TestRecordFromMap_SortsFields(t *testing.T) {
	r := RecordFromMap(map[string]any{"z": 1, "a": 2, "m": 3})
	if got := r.Fields(); !slices.Equal(got, []string{"a", "m", "z"}) {
		t.Errorf("fields = %v", got)
	}
	if len(r.Map()) != 3 {
		t.Errorf("Map = %v", r.Map())
	}
}

func TestRecord_MarshalJSON(t *testing.T) {
	r := NewRecord([]string{"text", "id", "vec"}, map[string]any{
		"text": "hi",
		"id":   int64(7),
		"vec":  []float64{0.5, 1},
	})
	data, err := r.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"text":"hi","id":7,"vec":[0.5,1]}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}

	empty, _ := Record{}.MarshalJSON()
	if string(empty) != "{}" {
		t.Errorf("empty record = %s", empty)
	}
}
