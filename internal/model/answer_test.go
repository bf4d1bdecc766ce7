package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestAnswerUnmarshalShapes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		kind AnswerKind
		vals []string
	}{
		{"string", `"option a"`, AnswerSingle, []string{"option a"}},
		{"array", `["a","b"]`, AnswerMultiple, []string{"a", "b"}},
		{"null", `null`, AnswerEmpty, nil},
		{"empty string", `""`, AnswerEmpty, nil},
		{"blank string", `"   "`, AnswerEmpty, nil},
		{"empty array", `[]`, AnswerEmpty, nil},
		{"array of blanks", `["", "  "]`, AnswerEmpty, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a Answer
			if err := json.Unmarshal([]byte(tc.in), &a); err != nil {
				t.Fatal(err)
			}
			if a.Kind() != tc.kind {
				t.Fatalf("kind = %v, want %v", a.Kind(), tc.kind)
			}
			if !reflect.DeepEqual(a.Values(), tc.vals) {
				t.Fatalf("values = %v, want %v", a.Values(), tc.vals)
			}
		})
	}
}

func TestAnswerUnmarshalRejectsOtherTypes(t *testing.T) {
	var a Answer
	if err := json.Unmarshal([]byte(`42`), &a); err == nil {
		t.Fatal("number unmarshalled without error")
	}
	if err := json.Unmarshal([]byte(`{"x":1}`), &a); err == nil {
		t.Fatal("object unmarshalled without error")
	}
}

func TestAnswerMarshalRoundTrip(t *testing.T) {
	cases := []struct {
		a    Answer
		want string
	}{
		{SingleAnswer("a"), `"a"`},
		{MultipleAnswer([]string{"a", "b"}), `["a","b"]`},
		{Answer{}, `null`},
	}
	for _, tc := range cases {
		out, err := json.Marshal(tc.a)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != tc.want {
			t.Fatalf("marshal = %s, want %s", out, tc.want)
		}
	}
}

func TestAnswerValueSet(t *testing.T) {
	a := MultipleAnswer([]string{"b", "a", "b", "A"})
	got := a.ValueSet()
	want := []string{"A", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("set = %v, want %v", got, want)
	}
}

func TestAnswerSingle(t *testing.T) {
	if v, ok := SingleAnswer("x").Single(); !ok || v != "x" {
		t.Fatalf("got %q %v", v, ok)
	}
	if v, ok := MultipleAnswer([]string{"x"}).Single(); !ok || v != "x" {
		t.Fatalf("one-element list: got %q %v", v, ok)
	}
	if _, ok := MultipleAnswer([]string{"x", "y"}).Single(); ok {
		t.Fatal("two-element list reported single")
	}
	if _, ok := (Answer{}).Single(); ok {
		t.Fatal("empty answer reported single")
	}
}

func TestAnswerMapAnswered(t *testing.T) {
	m := AnswerMap{
		"q1": SingleAnswer("a"),
		"q2": Answer{},
		"q3": MultipleAnswer([]string{"b"}),
	}
	if n := m.Answered(); n != 2 {
		t.Fatalf("answered = %d, want 2", n)
	}
}
