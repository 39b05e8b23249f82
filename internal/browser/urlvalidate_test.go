package browser

import "testing"

// Under blockPrivate, these hosts are all
// rejected regardless of notation (dotted, decimal, octal, hex).
func TestValidateURLRejectsPrivateNotations(t *testing.T) {
	p := URLPolicy{BlockPrivate: true}
	hosts := []string{
		"127.0.0.1",
		"::1",
		"10.0.0.1",
		"169.254.1.2",
		"0x7f000001",
		"2130706433",
		"0177.0.0.1",
	}
	for _, h := range hosts {
		raw := "http://" + h + "/"
		if h == "::1" {
			raw = "http://[::1]/"
		}
		if err := p.ValidateURL(raw); err == nil {
			t.Errorf("expected %s to be rejected", raw)
		}
	}
}

func TestValidateURLAllowsPublicHost(t *testing.T) {
	p := URLPolicy{BlockPrivate: true}
	if err := p.ValidateURL("https://example.com/path"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidateURLRejectsNonHTTPScheme(t *testing.T) {
	p := URLPolicy{BlockPrivate: true}
	if err := p.ValidateURL("ftp://example.com/"); err == nil {
		t.Fatalf("expected ftp scheme to be rejected")
	}
}

func TestValidateURLFileRequiresAllowFile(t *testing.T) {
	p := URLPolicy{BlockPrivate: true}
	if err := p.ValidateURL("file:///etc/passwd"); err == nil {
		t.Fatalf("expected file:// to be rejected without AllowFile")
	}
	p.AllowFile = true
	if err := p.ValidateURL("file:///etc/passwd"); err != nil {
		t.Fatalf("unexpected rejection with AllowFile=true: %v", err)
	}
}
