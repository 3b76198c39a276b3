package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"1000.00", 100000, true},
		{"-1", 0, false},
		{"-0.01", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{123, "1.23"},
		{100000, "1000.00"},
		{-5000, "-50.00"},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.cents}).String(); got != tc.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Money{Cents: 1000}
	b := Money{Cents: 250}

	if got := a.Add(b); got.Cents != 1250 {
		t.Errorf("Add = %d, want 1250", got.Cents)
	}
	if got := a.Sub(b); got.Cents != 750 {
		t.Errorf("Sub = %d, want 750", got.Cents)
	}
	if got := b.Neg(); got.Cents != -250 {
		t.Errorf("Neg = %d, want -250", got.Cents)
	}
	if !(Money{}).IsZero() {
		t.Error("zero Money should report IsZero")
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(Money{Cents: 123456})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"1234.56"` {
		t.Errorf("marshal = %s, want \"1234.56\"", b)
	}

	cases := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{`"10.50"`, 1050, true},
		{`10.50`, 1050, true}, // bare numbers accepted too
		{`"-42.00"`, -4200, true},
		{`"0"`, 0, true},
		{`"abc"`, 0, false},
	}
	for _, tc := range cases {
		var m Money
		err := json.Unmarshal([]byte(tc.in), &m)
		if tc.ok {
			if err != nil || m.Cents != tc.cents {
				t.Errorf("%s expected %d, got %d (err=%v)", tc.in, tc.cents, m.Cents, err)
			}
		} else if err == nil {
			t.Errorf("%s expected error", tc.in)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 100}).Validate(); err != nil {
		t.Errorf("positive amount should validate: %v", err)
	}
	if err := (Money{}).Validate(); err != nil {
		t.Errorf("zero amount should validate: %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); err == nil {
		t.Error("negative amount should not validate")
	}
}
