package specifier

import (
	"testing"

	"github.com/initgraph/unittree/pkg/units"
)

func TestExpand_BasicSpecifiers(t *testing.T) {
	id := units.Identity{Prefix: "getty", Instance: "tty1", Type: units.TypeService}

	tests := []struct {
		in   string
		want string
	}{
		{"/sbin/agetty %i", "/sbin/agetty tty1"},
		{"%n", "getty@tty1.service"},
		{"%N", "getty@tty1"},
		{"%p", "getty"},
		{"100%%", "100%"},
	}
	for _, tt := range tests {
		got := Expand(tt.in, id, nil)
		if got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpand_DecodedInstance(t *testing.T) {
	id := units.Identity{Prefix: "systemd-fsck", Instance: `dev-sda1`, Type: units.TypeService}
	got := Expand("%I", id, nil)
	if got != "dev-sda1" {
		t.Errorf("Expand(%%I) = %q, want %q", got, "dev-sda1")
	}
}

func TestExpand_UnknownSpecifierWarns(t *testing.T) {
	id := units.Identity{Prefix: "foo", Instance: "bar", Type: units.TypeService}
	var warned string
	Expand("%q", id, func(code, detail string) { warned = code })
	if warned != "UnknownSpecifier" {
		t.Errorf("warn code = %q, want UnknownSpecifier", warned)
	}
}

func TestDecodeInstance_HexEscape(t *testing.T) {
	got := DecodeInstance(`foo\x2dbar`)
	if got != "foo-bar" {
		t.Errorf("DecodeInstance() = %q, want %q", got, "foo-bar")
	}
}

func TestCheckAliasLegality(t *testing.T) {
	tests := []struct {
		alias, target string
		wantOK        bool
	}{
		{"default.target", "foo.service", false},
		{"default.target", "multi-user.target", true},
		{"foo@.service", "bar@.service", true},
		{"foo@1.service", "bar@2.service", true},
		{"foo@1.service", "bar.service", false},
	}
	for _, tt := range tests {
		ok, reason := CheckAliasLegality(tt.alias, tt.target)
		if ok != tt.wantOK {
			t.Errorf("CheckAliasLegality(%q, %q) = %v (%s), want %v", tt.alias, tt.target, ok, reason, tt.wantOK)
		}
	}
}
