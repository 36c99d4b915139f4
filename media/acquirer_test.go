package media

import "testing"

func TestAcquirerDefaultsBinaries(t *testing.T) {
	a := &Acquirer{}
	if a.bin() != "yt-dlp" {
		t.Errorf("bin() = %q, want yt-dlp", a.bin())
	}
	if a.transcoderBin() != "ffmpeg" {
		t.Errorf("transcoderBin() = %q, want ffmpeg", a.transcoderBin())
	}

	a2 := &Acquirer{ExtractorBin: "/opt/bin/yt-dlp", TranscoderBin: "/opt/bin/ffmpeg"}
	if a2.bin() != "/opt/bin/yt-dlp" {
		t.Errorf("bin() override = %q, want /opt/bin/yt-dlp", a2.bin())
	}
	if a2.transcoderBin() != "/opt/bin/ffmpeg" {
		t.Errorf("transcoderBin() override = %q, want /opt/bin/ffmpeg", a2.transcoderBin())
	}
}

func TestClientSpoofArgsIncludesExpectedFlags(t *testing.T) {
	args := clientSpoofArgs()
	want := []string{"--extractor-args", "--user-agent", "--force-ipv4", "--retries", "--socket-timeout"}
	for _, w := range want {
		found := false
		for _, a := range args {
			if a == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("clientSpoofArgs() missing flag %q", w)
		}
	}
}

func TestProbeRetryBackoffLimitsRetries(t *testing.T) {
	b := ProbeRetryBackoff()
	attempts := 0
	for {
		d := b.NextBackOff()
		if d < 0 {
			break
		}
		attempts++
		if attempts > 10 {
			t.Fatal("backoff did not terminate within expected retry bound")
		}
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
