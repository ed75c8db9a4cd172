package tls

import (
	"crypto/x509"
	"testing"
)

func TestGenerateCertReusesValidCertificate(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)

	first, err := gen.GenerateCert([]string{"localhost", "127.0.0.1"})
	if err != nil {
		t.Fatalf("GenerateCert: %v", err)
	}
	leaf, err := x509.ParseCertificate(first.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "localhost" || len(leaf.IPAddresses) != 1 {
		t.Errorf("SANs = %v %v", leaf.DNSNames, leaf.IPAddresses)
	}

	second, err := gen.GenerateCert([]string{"localhost"})
	if err != nil {
		t.Fatalf("GenerateCert: %v", err)
	}
	if string(second.Certificate[0]) != string(first.Certificate[0]) {
		t.Error("valid certificate was regenerated")
	}
}
