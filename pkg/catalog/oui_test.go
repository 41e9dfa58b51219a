package catalog

import "testing"

func TestOUITable_KnownPrefixes(t *testing.T) {
	oui := NewOUITable()

	tests := []struct {
		mac  string
		want string
	}{
		{"00:00:0C:12:34:56", "Cisco Systems, Inc"},
		{"00:e0:fc:aa:bb:cc", "Huawei Technologies Co.,Ltd"},
		{"FC:EC:DA:00:11:22", "Ubiquiti Inc"},
		{"DC:A6:32:00:11:22", "Raspberry Pi Trading Ltd"},
	}

	for _, tt := range tests {
		t.Run(tt.mac, func(t *testing.T) {
			if got := oui.Lookup(tt.mac); got != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.mac, got, tt.want)
			}
		})
	}
}

func TestOUITable_Formats(t *testing.T) {
	oui := NewOUITable()

	// Cisco IOS prints dotted MACs; the others come from REST and SNMP.
	formats := []string{
		"00:50:56:12:34:56",
		"00-50-56-12-34-56",
		"005056123456",
		"0050.5612.3456",
	}
	for _, mac := range formats {
		t.Run(mac, func(t *testing.T) {
			if got := oui.Lookup(mac); got != "VMware, Inc." {
				t.Errorf("Lookup(%q) = %q, want VMware, Inc.", mac, got)
			}
		})
	}
}

func TestOUITable_UnknownOrMalformed(t *testing.T) {
	oui := NewOUITable()
	for _, mac := range []string{"", "AB", "not-a-mac", "FF:FF:FF:FF:FF:FF"} {
		if got := oui.Lookup(mac); got != "" {
			t.Errorf("Lookup(%q) = %q, want empty", mac, got)
		}
	}
}

func TestOUIPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC"},
		{"AA-BB-CC-DD-EE-FF", "AA:BB:CC"},
		{"aabb.ccdd.eeff", "AA:BB:CC"},
		{"", ""},
		{"AB", ""},
	}
	for _, tt := range tests {
		if got := ouiPrefix(tt.input); got != tt.want {
			t.Errorf("ouiPrefix(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
