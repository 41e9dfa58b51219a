package catalog

import (
	"testing"
)

func TestEntries(t *testing.T) {
	c := NewCatalog()
	entries, err := c.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("len(Entries()) = %d, want 4", len(entries))
	}
	for _, e := range entries {
		if e.Vendor == "" || e.Model == "" {
			t.Errorf("entry %q missing vendor or model", e.ID)
		}
		if len(e.Adapters) == 0 {
			t.Errorf("entry %q has no adapters", e.ID)
		}
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	c := NewCatalog()
	a, _ := c.Entries()
	a[0].Model = "mutated"
	b, _ := c.Entries()
	if b[0].Model == "mutated" {
		t.Error("Entries() exposed internal slice")
	}
}

func TestLookup(t *testing.T) {
	c := NewCatalog()

	e, ok := c.Lookup("Catalyst-9300-24UX")
	if !ok {
		t.Fatal("Lookup(catalyst-9300-24ux) not found")
	}
	if e.MaxPorts != 42 {
		t.Errorf("MaxPorts = %d, want 42", e.MaxPorts)
	}

	if _, ok := c.Lookup("nexus-9000"); ok {
		t.Error("Lookup(nexus-9000) found, want miss")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	c := &Catalog{}
	err := c.parse([]byte("entries:\n  - id: a\n  - id: A\n"))
	if err == nil {
		t.Fatal("parse() error = nil, want duplicate id error")
	}
}
