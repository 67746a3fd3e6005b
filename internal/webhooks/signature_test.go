package webhooks

import (
	"testing"
	"time"
)

func TestSignAndVerifyHMAC(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := SignHMAC("s3cret", body)
	if !VerifyHMAC("s3cret", body, sig) {
		t.Fatalf("signature should verify")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatalf("wrong secret must not verify")
	}
	if VerifyHMAC("s3cret", body, "not-hex") {
		t.Fatalf("garbage signature must not verify")
	}
}

func TestTimestampedSignature(t *testing.T) {
	body := []byte(`{"type":"route.optimized"}`)
	at := time.Unix(1_700_000_000, 0)
	header := SignTimestamped("k", at, body)
	if header[:13] != "t=1700000000," {
		t.Fatalf("unexpected header %q", header)
	}
	if !VerifyTimestamped("k", header, body, 5*time.Minute, at.Add(time.Minute)) {
		t.Fatalf("fresh signature should verify")
	}
	if VerifyTimestamped("k", header, body, 5*time.Minute, at.Add(time.Hour)) {
		t.Fatalf("stale signature must not verify")
	}
	if !VerifyTimestamped("k", header, body, 0, at.Add(time.Hour)) {
		t.Fatalf("zero tolerance skips age check")
	}
	if VerifyTimestamped("k", header, []byte(`{}`), 0, at) {
		t.Fatalf("tampered body must not verify")
	}
	if VerifyTimestamped("k", "v1=abc", body, 0, at) {
		t.Fatalf("missing timestamp must not verify")
	}
}
