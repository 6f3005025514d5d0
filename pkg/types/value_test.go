// pkg/types/value_test.go
package types

import "testing"

func TestValueInt(t *testing.T) {
	v := NewInt(42)
	if v.Kind() != KindInt {
		t.Errorf("expected KindInt, got %v", v.Kind())
	}
	if v.Int() != 42 {
		t.Errorf("expected 42, got %d", v.Int())
	}
}

func TestValueFloat(t *testing.T) {
	v := NewFloat(3.14)
	if v.Kind() != KindFloat {
		t.Errorf("expected KindFloat, got %v", v.Kind())
	}
	if v.Float() != float32(3.14) {
		t.Errorf("expected 3.14, got %f", v.Float())
	}
}

func TestValueChar(t *testing.T) {
	v := NewChar("A")
	if v.Kind() != KindChar {
		t.Errorf("expected KindChar, got %v", v.Kind())
	}
	if v.Text() != "A" {
		t.Errorf("expected 'A', got %s", v.Text())
	}
}

func TestValueVarchar(t *testing.T) {
	v := NewVarchar("hello")
	if v.Kind() != KindVarchar {
		t.Errorf("expected KindVarchar, got %v", v.Kind())
	}
	if v.Text() != "hello" {
		t.Errorf("expected 'hello', got %s", v.Text())
	}
}

func TestValueEqual(t *testing.T) {
	if !NewInt(5).Equal(NewInt(5)) {
		t.Error("expected equal ints to compare equal")
	}
	if NewInt(5).Equal(NewFloat(5)) {
		t.Error("expected values of different kinds to compare unequal")
	}
	if NewVarchar("a").Equal(NewVarchar("b")) {
		t.Error("expected different varchars to compare unequal")
	}
}
