package media

import "testing"

func TestSanitizeReplacesDisallowedCharacters(t *testing.T) {
	cases := map[string]string{
		"Market Outlook: Q3 2026":  "Market Outlook_ Q3 2026",
		"normal-title_123":        "normal-title_123",
		"weird/chars\\in*title?!": "weird_chars_in_title__",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	in := "Weekly Roundup #42 (Live!)"
	once := Sanitize(in)
	twice := Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize not idempotent: %q != %q", once, twice)
	}
}

func TestScratchFilename(t *testing.T) {
	got := ScratchFilename("2026-07-31", "Market_Outlook", ".mp4")
	want := "2026-07-31 - Market_Outlook.mp4"
	if got != want {
		t.Errorf("ScratchFilename() = %q, want %q", got, want)
	}

	gotNoDot := ScratchFilename("2026-07-31", "Market_Outlook", "mp4")
	if gotNoDot != want {
		t.Errorf("ScratchFilename() without leading dot = %q, want %q", gotNoDot, want)
	}
}

func TestIsVideoHostURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
	}
	for _, u := range valid {
		if !IsVideoHostURL(u) {
			t.Errorf("IsVideoHostURL(%q) = false, want true", u)
		}
	}

	invalid := []string{
		"https://discord.com/channels/1/2/3",
		"not-a-url",
		"",
	}
	for _, u := range invalid {
		if IsVideoHostURL(u) {
			t.Errorf("IsVideoHostURL(%q) = true, want false", u)
		}
	}
}

func TestIsChatMessageURL(t *testing.T) {
	valid := []string{
		"https://discord.com/channels/111111111111111111/222222222222222222/333333333333333333",
		"https://ptb.discord.com/channels/1/2/3",
		"https://canary.discordapp.com/channels/1/2/3",
	}
	for _, u := range valid {
		if !IsChatMessageURL(u) {
			t.Errorf("IsChatMessageURL(%q) = false, want true", u)
		}
	}

	invalid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"not-a-url",
	}
	for _, u := range invalid {
		if IsChatMessageURL(u) {
			t.Errorf("IsChatMessageURL(%q) = true, want false", u)
		}
	}
}

func TestVideoHostAndChatMessageAreMutuallyExclusive(t *testing.T) {
	urls := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://discord.com/channels/1/2/3",
		"https://example.com/video.mp4",
	}
	for _, u := range urls {
		if IsVideoHostURL(u) && IsChatMessageURL(u) {
			t.Errorf("%q matched both video-host and chat-message patterns", u)
		}
	}
}
