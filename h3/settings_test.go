package h3

import "testing"

func TestSettingsMapRoundTrip(t *testing.T) {
	want := SettingsMap{
		H3_DATAGRAM_05:      1,
		ENABLE_WEBTRANSPORT: 1,
	}

	frame := want.ToFrame()
	if frame.Type != FRAME_SETTINGS {
		t.Fatalf("frame type = %#x, want FRAME_SETTINGS", frame.Type)
	}

	got := SettingsMap{}
	if err := got.FromFrame(frame); err != nil {
		t.Fatalf("FromFrame: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d settings, want %d", len(got), len(want))
	}
	for id, val := range want {
		if got[id] != val {
			t.Fatalf("setting %s = %d, want %d", id, got[id], val)
		}
	}
}

func TestSettingsMapDuplicateRejected(t *testing.T) {
	frame := Frame{Type: FRAME_SETTINGS}
	// Two entries for the same setting ID, hand-built.
	var data []byte
	for range [2]struct{}{} {
		m := SettingsMap{SETTINGS_MAX_FIELD_SECTION_SIZE: 1}
		data = append(data, m.ToFrame().Data...)
	}
	frame.Data = data
	frame.Length = uint64(len(data))

	got := SettingsMap{}
	if err := got.FromFrame(frame); err == nil {
		t.Fatal("expected an error for a duplicate setting")
	}
}

func TestSettingIDString(t *testing.T) {
	if ENABLE_WEBTRANSPORT.String() != "ENABLE_WEBTRANSPORT" {
		t.Fatalf("String() = %q", ENABLE_WEBTRANSPORT.String())
	}
	if SettingID(0x99).String() != "0x99" {
		t.Fatalf("String() for unknown id = %q", SettingID(0x99).String())
	}
}
