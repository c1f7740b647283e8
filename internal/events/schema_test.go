package events

import (
	"strings"
	"testing"
)

func TestRegistryRejectsUnknownType(t *testing.T) {
	if err := Validate(Type("made.up"), nil); err == nil {
		t.Fatalf("unknown type must be rejected")
	}
	if Known(Type("made.up")) {
		t.Errorf("registry must not contain made.up")
	}
}

func TestRegistryTypesAreDottedLowercase(t *testing.T) {
	for _, typ := range All() {
		s := string(typ)
		if !strings.Contains(s, ".") {
			t.Errorf("type %q is not namespaced", s)
		}
		if s != strings.ToLower(s) {
			t.Errorf("type %q is not lowercase", s)
		}
	}
}

func TestValidateDamageApplied(t *testing.T) {
	valid := map[string]any{
		"targetId":       "p2",
		"damageAmount":   25,
		"targetHpBefore": 100,
		"targetHpAfter":  75,
		"attackerId":     "p1",
	}
	if err := Validate(DamageApplied, valid); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	missing := map[string]any{"targetId": "p2"}
	if err := Validate(DamageApplied, missing); err == nil {
		t.Errorf("missing damageAmount must be rejected")
	}

	negative := map[string]any{
		"targetId":       "p2",
		"damageAmount":   -1,
		"targetHpBefore": 100,
		"targetHpAfter":  75,
	}
	if err := Validate(DamageApplied, negative); err == nil {
		t.Errorf("negative damageAmount must be rejected")
	}

	wrongType := map[string]any{
		"targetId":       7,
		"damageAmount":   25,
		"targetHpBefore": 100,
		"targetHpAfter":  75,
	}
	if err := Validate(DamageApplied, wrongType); err == nil {
		t.Errorf("non-string targetId must be rejected")
	}
}

func TestValidateAcceptsJSONNumbers(t *testing.T) {
	payload := map[string]any{
		"targetId":       "p2",
		"damageAmount":   float64(25), // json.Unmarshal produces float64
		"targetHpBefore": float64(100),
		"targetHpAfter":  float64(75),
	}
	if err := Validate(DamageApplied, payload); err != nil {
		t.Fatalf("json-decoded numbers must validate: %v", err)
	}

	payload["damageAmount"] = 25.5
	if err := Validate(DamageApplied, payload); err == nil {
		t.Errorf("fractional damageAmount must be rejected")
	}
}

func TestValidateUnschematizedTypePassesAnyPayload(t *testing.T) {
	if err := Validate(SystemWarning, map[string]any{"whatever": []int{1, 2}}); err != nil {
		t.Fatalf("types without schemas accept any payload: %v", err)
	}
}
