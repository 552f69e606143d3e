package collector

import "testing"

func TestGenerateTLSConfigProducesUsableCertAndALPN(t *testing.T) {
	conf, err := GenerateTLSConfig()
	if err != nil {
		t.Fatalf("GenerateTLSConfig: %v", err)
	}

	if len(conf.Certificates) != 1 {
		t.Fatalf("Certificates = %d, want 1", len(conf.Certificates))
	}

	if len(conf.NextProtos) != 1 || conf.NextProtos[0] != ALPN {
		t.Fatalf("NextProtos = %v, want [%s]", conf.NextProtos, ALPN)
	}
}

func TestServerAddrIsNilBeforeServe(t *testing.T) {
	s := &Server{}
	if got := s.Addr(); got != nil {
		t.Fatalf("Addr before Serve = %v, want nil", got)
	}
}
