package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		major   uint16
		minor   uint16
		wantErr bool
	}{
		{in: "1.0", major: 1, minor: 0},
		{in: "1.12", major: 1, minor: 12},
		{in: "10.3", major: 10, minor: 3},
		{in: "1", wantErr: true},
		{in: "1.0.0", wantErr: true},
		{in: "a.b", wantErr: true},
		{in: "1.", wantErr: true},
		{in: ".0", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor {
				t.Errorf("Parse(%q) = %d.%d, want %d.%d", tt.in, v.Major, v.Minor, tt.major, tt.minor)
			}
		})
	}
}

func TestCurrentParses(t *testing.T) {
	v, err := Parse(Current)
	if err != nil {
		t.Fatalf("Current %q does not parse: %v", Current, err)
	}
	if v.String() != Current {
		t.Errorf("round trip = %q, want %q", v.String(), Current)
	}
}

func TestCompatible(t *testing.T) {
	v1 := Version{Major: 1, Minor: 0}
	if !v1.Compatible(Version{Major: 1, Minor: 7}) {
		t.Error("same major should be compatible")
	}
	if v1.Compatible(Version{Major: 2, Minor: 0}) {
		t.Error("different major should not be compatible")
	}
}

func TestCheckCompatible(t *testing.T) {
	if err := CheckCompatible(""); err != nil {
		t.Errorf("empty version should pass: %v", err)
	}
	if err := CheckCompatible(Current); err != nil {
		t.Errorf("current version should pass: %v", err)
	}
	if err := CheckCompatible("99.0"); err == nil {
		t.Error("major mismatch should fail")
	}
	if err := CheckCompatible("garbage"); err == nil {
		t.Error("unparseable version should fail")
	}
}
