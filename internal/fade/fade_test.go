package fade

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDerivedValues(t *testing.T) {
	tests := []struct {
		name                                 string
		cfg                                  Config
		outLen, outVol, offset, inLen, inVol int
	}{
		{
			name:   "advanced locked",
			cfg:    Config{Type: TypeAdvancedXF, OutEnable: true, OutLenMs: 4000, OutVolume: 20, OffsetType: OffsetCustom, OffsetCustomMs: -6000, InLocked: true, InLenMs: 100, InVolume: 70},
			outLen: 4000, outVol: 20, offset: -6000, inLen: 4000, inVol: 20,
		},
		{
			name:   "advanced unlocked lock-in offset",
			cfg:    Config{Type: TypeAdvancedXF, OutEnable: false, OutLenMs: 4000, OffsetType: OffsetLockIn, InEnable: true, InLenMs: 1500, InVolume: 150},
			outLen: 0, outVol: 0, offset: -1500, inLen: 1500, inVol: 100,
		},
		{
			name:   "advanced lock-out offset",
			cfg:    Config{Type: TypeAdvancedXF, OutEnable: true, OutLenMs: 2500, OffsetType: OffsetLockOut},
			outLen: 2500, offset: -2500, inLen: 0,
		},
		{
			name:   "simple",
			cfg:    Config{Type: TypeSimpleXF, SimpleLenMs: 1000, OutVolume: 50},
			outLen: 1000, offset: -1000, inLen: 1000,
		},
		{
			name:   "flush with pause and fade-in",
			cfg:    Config{Type: TypeFlush, FlushPauseEnable: true, FlushPauseLenMs: 300, FlushInEnable: true, FlushInLenMs: 200, FlushInVolume: -5},
			offset: 300, inLen: 200, inVol: 0,
		},
		{
			name:   "flush disabled parts",
			cfg:    Config{Type: TypeFlush, FlushPauseLenMs: 300, FlushInLenMs: 200, FlushInVolume: 40},
			offset: 0, inLen: 0, inVol: 40,
		},
		{
			name:   "pause gap",
			cfg:    Config{Type: TypePause, PauseLenMs: 2000},
			offset: 2000,
		},
		{
			name:   "fade out",
			cfg:    Config{Type: TypeFadeOut, OutLenMs: 100, OutVolume: 10, OffsetCustomMs: 500},
			outLen: 100, outVol: 10, offset: 500,
		},
		{
			name:   "fade in",
			cfg:    Config{Type: TypeFadeIn, InLenMs: 100, InVolume: 30},
			inLen: 100, inVol: 30,
		},
		{
			name:   "pause advanced",
			cfg:    Config{Type: TypePauseAdv, OutLenMs: 100, OffsetCustomMs: 100, InLenMs: 120},
			outLen: 100, offset: 100, inLen: 120,
		},
		{
			name: "none",
			cfg:  Config{Type: TypeNone, OutLenMs: 100, SimpleLenMs: 5, InLenMs: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cfg
			if got := c.FadeOutLen(); got != tt.outLen {
				t.Errorf("FadeOutLen() = %d, want %d", got, tt.outLen)
			}
			if got := c.FadeOutVolume(); got != tt.outVol {
				t.Errorf("FadeOutVolume() = %d, want %d", got, tt.outVol)
			}
			if got := c.Offset(); got != tt.offset {
				t.Errorf("Offset() = %d, want %d", got, tt.offset)
			}
			if got := c.FadeInLen(); got != tt.inLen {
				t.Errorf("FadeInLen() = %d, want %d", got, tt.inLen)
			}
			if got := c.FadeInVolume(); got != tt.inVol {
				t.Errorf("FadeInVolume() = %d, want %d", got, tt.inVol)
			}
		})
	}
}

func TestSpan(t *testing.T) {
	table := DefaultTable()
	if got := table[ScenarioXfade].Span(); got != 6000 {
		t.Fatalf("xfade span = %d, want 6000", got)
	}
	if got := table[ScenarioPause].Span(); got != 200 {
		t.Fatalf("pause span = %d, want 200", got)
	}
	if got := table[ScenarioStop].Span(); got != 100 {
		t.Fatalf("stop span = %d, want 100", got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	table := DefaultTable()
	for s := Scenario(0); s < NumScenarios; s++ {
		orig := table[s]
		encoded := orig.String()
		if n := len(strings.Split(encoded, ",")); n != 18 {
			t.Fatalf("%s: encoded %d fields", s, n)
		}
		var parsed Config
		parsed.Scenario = orig.Scenario
		parsed.Flush = orig.Flush
		parsed.TypeMask = orig.TypeMask
		if err := ParseInto(encoded, &parsed); err != nil {
			t.Fatalf("%s: ParseInto() error = %v", s, err)
		}
		if parsed != orig {
			t.Fatalf("%s: round trip mismatch\n got %+v\nwant %+v", s, parsed, orig)
		}
	}
}

func TestParseIntoKeepsIdentity(t *testing.T) {
	c := DefaultTable()[ScenarioManual]
	if err := ParseInto("7,1,2,1,3,4,2,2,-5,0,1,6,7,1,8,0,9,10", &c); err != nil {
		t.Fatalf("ParseInto() error = %v", err)
	}
	if c.Scenario != ScenarioManual || !c.Flush || !c.Allows(TypeFlush) {
		t.Fatalf("scenario, flush flag or mask changed: %+v", c)
	}
	if c.Type != TypeFadeOut || c.OffsetType != OffsetLockOut || c.OffsetCustomMs != -5 || c.FlushInVolume != 10 {
		t.Fatalf("unexpected parse result %+v", c)
	}
}

func TestParseIntoRejectsShortInput(t *testing.T) {
	c := DefaultTable()[ScenarioXfade]
	before := c
	if err := ParseInto("1,2,3", &c); err == nil {
		t.Fatalf("expected error for short input")
	}
	if err := ParseInto("a,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18", &c); err == nil {
		t.Fatalf("expected error for non-numeric input")
	}
	if c != before {
		t.Fatalf("config modified on error")
	}
}

func TestTableJSON(t *testing.T) {
	table := DefaultTable()
	table[ScenarioXfade].SimpleLenMs = 1234
	data, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal raw error = %v", err)
	}
	if len(raw) != 8 {
		t.Fatalf("expected 8 persisted keys, got %d", len(raw))
	}
	if _, ok := raw["fc_timing"]; ok {
		t.Fatalf("timing scenario must not be persisted")
	}

	decoded := DefaultTable()
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded != table {
		t.Fatalf("table mismatch after JSON round trip")
	}

	if err := json.Unmarshal([]byte(`{"fc_bogus":"1"}`), &decoded); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	table := DefaultTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	table[ScenarioAlbum].Type = TypeSimpleXF
	if err := table.Validate(); err == nil {
		t.Fatalf("expected error for disallowed type")
	}
}

func TestMasks(t *testing.T) {
	table := DefaultTable()
	if !table[ScenarioManual].Allows(TypeFlush) || table[ScenarioXfade].Allows(TypeFlush) {
		t.Fatalf("flush must be allowed for manual only")
	}
	if !table[ScenarioSeek].Allows(TypeSimpleXF) || table[ScenarioSeek].Allows(TypeAdvancedXF) {
		t.Fatalf("unexpected seek mask")
	}
	if Mask(0).Has(TypeNone) || Mask(0xffff).Has(Type(42)) {
		t.Fatalf("unexpected mask membership")
	}
}
