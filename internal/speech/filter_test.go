package speech

import "testing"

func TestTranscriptFilter_CleanStripsHesitations(t *testing.T) {
	f := NewTranscriptFilter(nil)

	cleaned, meaningful := f.Clean("um I worked uh on a project")
	if !meaningful {
		t.Fatal("expected meaningful content")
	}
	if cleaned != "I worked on a project" {
		t.Errorf("unexpected cleaned text: %q", cleaned)
	}
}

func TestTranscriptFilter_KeepsConversationalFillers(t *testing.T) {
	f := NewTranscriptFilter(nil)

	// "like" and "so" carry meaning in answers and must survive.
	cleaned, _ := f.Clean("I like Go so much")
	if cleaned != "I like Go so much" {
		t.Errorf("conversational words must be preserved, got %q", cleaned)
	}
}

func TestTranscriptFilter_HesitationOnly(t *testing.T) {
	f := NewTranscriptFilter(nil)

	cases := map[string]bool{
		"um... uh":        true,
		"hmm":             true,
		"":                true,
		"...":             true,
		"um yes":          false,
		"a real answer":   false,
		"Umm, absolutely": false,
	}
	for text, want := range cases {
		if got := f.HesitationOnly(text); got != want {
			t.Errorf("HesitationOnly(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestTranscriptFilter_SetWords(t *testing.T) {
	f := NewTranscriptFilter(nil)
	f.SetWords([]string{"banana"})

	cleaned, _ := f.Clean("um banana bread")
	if cleaned != "um bread" {
		t.Errorf("expected custom word list to apply, got %q", cleaned)
	}
}

func TestTranscriptFilter_CaseInsensitive(t *testing.T) {
	f := NewTranscriptFilter(nil)

	if !f.HesitationOnly("UM... UHH") {
		t.Error("filter must match case-insensitively")
	}
}
