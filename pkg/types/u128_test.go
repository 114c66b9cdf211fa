package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestU128_ZeroValue(t *testing.T) {
	if !Zero.IsZero() {
		t.Error("Zero should be zero")
	}
	if !(U128{}).IsZero() {
		t.Error("U128{} should be zero")
	}
}

func TestU128_FromUint64(t *testing.T) {
	u := U128FromUint64(12345)
	if u.Lo != 12345 || u.Hi != 0 {
		t.Errorf("U128FromUint64(12345) = %+v", u)
	}
}

func TestU128_String(t *testing.T) {
	cases := []struct {
		u    U128
		want string
	}{
		{U128{}, "0"},
		{U128FromUint64(42), "42"},
		{U128FromUint64(math.MaxUint64), "18446744073709551615"},
		{U128{Lo: 0, Hi: 1}, "18446744073709551616"},
	}
	for _, c := range cases {
		if got := c.u.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestParseU128_RoundTrip(t *testing.T) {
	inputs := []string{"0", "1", "18446744073709551615", "18446744073709551616", "340282366920938463463374607431768211455"}
	for _, s := range inputs {
		u, err := ParseU128(s)
		if err != nil {
			t.Fatalf("ParseU128(%q) error: %v", s, err)
		}
		if got := u.String(); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestParseU128_Invalid(t *testing.T) {
	invalid := []string{"", "-1", "abc", "1.5", "340282366920938463463374607431768211456"}
	for _, s := range invalid {
		if _, err := ParseU128(s); err == nil {
			t.Errorf("ParseU128(%q) should fail", s)
		}
	}
}

func TestU128_Add(t *testing.T) {
	a := U128FromUint64(math.MaxUint64)
	b := U128FromUint64(1)
	sum := a.Add(b)
	if sum.Lo != 0 || sum.Hi != 1 {
		t.Errorf("MaxUint64+1 = %+v, want carry into Hi", sum)
	}
}

func TestU128_Add_OverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Add should panic on 128-bit overflow")
		}
	}()
	max, _ := ParseU128("340282366920938463463374607431768211455")
	max.Add(U128FromUint64(1))
}

func TestU128_Sub(t *testing.T) {
	a := U128FromUint64(100)
	b := U128FromUint64(40)
	diff, ok := a.Sub(b)
	if !ok || diff.String() != "60" {
		t.Errorf("100-40 = %+v ok=%v, want 60 true", diff, ok)
	}
}

func TestU128_Sub_Underflow(t *testing.T) {
	a := U128FromUint64(10)
	b := U128FromUint64(20)
	_, ok := a.Sub(b)
	if ok {
		t.Error("10-20 should underflow")
	}
}

func TestU128_Cmp(t *testing.T) {
	a := U128FromUint64(5)
	b := U128FromUint64(10)
	if a.Cmp(b) >= 0 {
		t.Error("5 should be less than 10")
	}
	if b.Cmp(a) <= 0 {
		t.Error("10 should be greater than 5")
	}
	if a.Cmp(a) != 0 {
		t.Error("a should equal a")
	}
	if !a.LessThan(b) || a.GreaterThan(b) {
		t.Error("LessThan/GreaterThan mismatch")
	}
}

func TestU128_BytesRoundTrip(t *testing.T) {
	u, _ := ParseU128("340282366920938463463374607431768211455")
	b := u.Bytes()
	if len(b) != U128Size {
		t.Fatalf("Bytes() length = %d, want %d", len(b), U128Size)
	}
	back := U128FromBytes(b)
	if back != u {
		t.Errorf("round trip mismatch: got %+v, want %+v", back, u)
	}
}

func TestU128FromBytes_ShortInput(t *testing.T) {
	if got := U128FromBytes(nil); !got.IsZero() {
		t.Error("nil bytes should decode to zero")
	}
	if got := U128FromBytes([]byte{1, 2, 3}); got.IsZero() {
		t.Error("short bytes should decode to a nonzero partial value")
	}
}

func TestU128_JSONRoundTrip(t *testing.T) {
	u := U128FromUint64(9_999_999_999)
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(data) != `"9999999999"` {
		t.Errorf("Marshal() = %s, want quoted decimal string", data)
	}

	var decoded U128
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded != u {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, u)
	}
}

func TestU128_UnmarshalJSON_BareNumber(t *testing.T) {
	var u U128
	if err := json.Unmarshal([]byte(`42`), &u); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if u.String() != "42" {
		t.Errorf("got %s, want 42", u.String())
	}
}

func TestU128_UnmarshalJSON_Invalid(t *testing.T) {
	var u U128
	if err := json.Unmarshal([]byte(`"not-a-number"`), &u); err == nil {
		t.Error("Unmarshal should reject a non-numeric string")
	}
	if err := json.Unmarshal([]byte(`"-5"`), &u); err == nil {
		t.Error("Unmarshal should reject negative values")
	}
}

type amountHolder struct {
	Amount U128 `json:"amount"`
}

func TestU128_EmbeddedInStruct(t *testing.T) {
	h := amountHolder{Amount: U128FromUint64(123)}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded amountHolder
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if decoded.Amount != h.Amount {
		t.Errorf("embedded round trip mismatch: got %+v, want %+v", decoded.Amount, h.Amount)
	}
}
