package sequence

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		prefix string
		n      int
		want   string
	}{
		{PrefixInvoice, 1, "INV0001"},
		{PrefixInvoice, 48, "INV0048"},
		{PrefixAppointment, 9999, "APT9999"},
		{PrefixAppointment, 10000, "APT10000"},
		{PrefixPatient, 7, "P0007"},
	}
	for _, tt := range tests {
		if got := Format(tt.prefix, tt.n); got != tt.want {
			t.Errorf("Format(%q, %d) = %q, want %q", tt.prefix, tt.n, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	n, err := Parse(PrefixInvoice, "INV0047")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 47 {
		t.Errorf("expected 47, got %d", n)
	}

	for _, bad := range []string{"APT0001", "INV", "INVabc", "INV-12"} {
		if _, err := Parse(PrefixInvoice, bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestNextAfter(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		last   string
		want   string
	}{
		{"empty table", PrefixInvoice, "", "INV0001"},
		{"after 47", PrefixInvoice, "INV0047", "INV0048"},
		{"rollover width", PrefixAppointment, "APT9999", "APT10000"},
		{"patient", PrefixPatient, "P0012", "P0013"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextAfter(tt.prefix, tt.last)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNextAfter_Corrupt(t *testing.T) {
	if _, err := NextAfter(PrefixInvoice, "BILL-1"); err == nil {
		t.Error("expected error for foreign number format")
	}
}

func TestAllocatorPrefix(t *testing.T) {
	a := NewAllocator(nil, "bills", "bill_number", PrefixInvoice)
	if a.Prefix() != "INV" {
		t.Errorf("expected INV, got %s", a.Prefix())
	}
}
