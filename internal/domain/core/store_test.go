package core

import (
	"strings"
	"testing"

	cryptoutil "shiftwatch/internal/platform/crypto"
)

func TestUnsealCredentialsIsolatesBadCiphertext(t *testing.T) {
	svc, err := cryptoutil.New(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	s := NewStore(nil, svc)
	sealed, err := svc.EncryptString("device-pass")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	good := Zone{ID: 1, Name: "gate"}
	s.unsealCredentials(&good, sealed)
	if good.CredentialsErr != nil || good.DevicePassword != "device-pass" {
		t.Fatalf("expected readable credentials, got %+v", good)
	}

	corrupt := append([]byte{}, sealed...)
	corrupt[len(corrupt)-1] ^= 0xff
	bad := Zone{ID: 2, Name: "dock"}
	s.unsealCredentials(&bad, corrupt)
	if bad.CredentialsErr == nil || bad.DevicePassword != "" {
		t.Fatalf("expected the zone to be flagged, got %+v", bad)
	}

	empty := Zone{ID: 3}
	s.unsealCredentials(&empty, nil)
	if empty.CredentialsErr != nil {
		t.Fatalf("a zone without a stored password is not an error: %v", empty.CredentialsErr)
	}
}
