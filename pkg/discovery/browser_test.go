package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
)

func TestServiceEntryConversion(t *testing.T) {
	entry := &ServiceEntry{
		Instance: "lab-server",
		Host:     "lab.local.",
		Port:     7440,
		Text:     []string{"id=lab-server", "things=spectrometer-1", "codecs=json,cbor", "v=1"},
		Addrs:    []string{"192.168.1.10", "fe80::1"},
	}

	svc, err := entry.ToServerService()
	if err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if svc.ServerID != "lab-server" || svc.Port != 7440 {
		t.Errorf("svc = %+v", svc)
	}
	if len(svc.Addresses) != 2 {
		t.Errorf("addresses = %v", svc.Addresses)
	}
	if len(svc.Codecs) != 2 || svc.Codecs[0] != "json" {
		t.Errorf("codecs = %v", svc.Codecs)
	}
	if !svc.HasThing("spectrometer-1") {
		t.Error("HasThing(spectrometer-1) = false")
	}
	if svc.HasThing("other") {
		t.Error("HasThing(other) = true")
	}
}

func TestServiceEntryConversionInvalidTXT(t *testing.T) {
	entry := &ServiceEntry{
		Instance: "bad",
		Text:     []string{"things=a"},
	}
	if _, err := entry.ToServerService(); err == nil {
		t.Error("entry without server ID converted")
	}
}

func TestMergeAddresses(t *testing.T) {
	merged := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	if len(merged) != 2 {
		t.Errorf("merged = %v", merged)
	}
}

func TestRemoveAddresses(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		AddrIPv4: []net.IP{net.ParseIP("10.0.0.1")},
	}
	left := removeAddresses([]string{"10.0.0.1", "10.0.0.2"}, entry)
	if len(left) != 1 || left[0] != "10.0.0.2" {
		t.Errorf("left = %v", left)
	}
}
