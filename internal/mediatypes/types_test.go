package mediatypes

import "testing"

func TestParseRuleNormalization(t *testing.T) {
	rule, err := ParseRule(".JPG, jpeg , .Jpe", "image/jpeg", KindRaster)
	if err != nil {
		t.Fatalf("ParseRule failed: %v", err)
	}
	want := []string{"jpg", "jpeg", "jpe"}
	if len(rule.Extensions) != len(want) {
		t.Fatalf("got extensions %v, want %v", rule.Extensions, want)
	}
	for i, e := range want {
		if rule.Extensions[i] != e {
			t.Errorf("extension %d = %q, want %q", i, rule.Extensions[i], e)
		}
	}
}

func TestParseRuleRejectsUnknownKind(t *testing.T) {
	if _, err := ParseRule("jpg", "image/jpeg", Kind("video")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestParseRuleRejectsEmpty(t *testing.T) {
	if _, err := ParseRule(" , ", "image/jpeg", KindRaster); err == nil {
		t.Error("expected error for empty extension list")
	}
	if _, err := ParseRule("jpg", "", KindRaster); err == nil {
		t.Error("expected error for empty mimetype")
	}
}

func TestMatchCaseAndDot(t *testing.T) {
	rules := NewRules(Defaults())

	for _, ext := range []string{"jpg", ".jpg", ".JPG", "Jpeg"} {
		rule := rules.Match(ext)
		if rule == nil {
			t.Fatalf("Match(%q) = nil, want jpeg rule", ext)
		}
		if rule.Mimetype != "image/jpeg" {
			t.Errorf("Match(%q).Mimetype = %q, want image/jpeg", ext, rule.Mimetype)
		}
	}
}

func TestMatchUnknownExtension(t *testing.T) {
	rules := NewRules(Defaults())
	if rule := rules.Match(".xyz"); rule != nil {
		t.Errorf("Match(.xyz) = %+v, want nil", rule)
	}
	if rule := rules.Match(""); rule != nil {
		t.Errorf("Match(\"\") = %+v, want nil", rule)
	}
}

func TestFirstRuleWins(t *testing.T) {
	rules := NewRules([]Rule{
		{Extensions: []string{"img"}, Mimetype: "image/first", Kind: KindRaster},
		{Extensions: []string{"img"}, Mimetype: "image/second", Kind: KindRaster},
	})
	rule := rules.Match("img")
	if rule == nil || rule.Mimetype != "image/first" {
		t.Errorf("Match(img) = %+v, want first rule", rule)
	}
}

func TestDefaultsKinds(t *testing.T) {
	rules := NewRules(Defaults())
	cases := map[string]Kind{
		"png":  KindRaster,
		"webp": KindRaster,
		"svg":  KindVector,
		"pdf":  KindDocument,
		"eps":  KindDocument,
	}
	for ext, kind := range cases {
		rule := rules.Match(ext)
		if rule == nil {
			t.Errorf("no default rule for %q", ext)
			continue
		}
		if rule.Kind != kind {
			t.Errorf("default kind for %q = %q, want %q", ext, rule.Kind, kind)
		}
	}
}
