package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
)

func TestDetectScenarios(t *testing.T) {
	m := NewMatcher(nil, nil)

	tests := []struct {
		name    string
		in      string
		mode    audio.Mode
		trigger string
		text    string
	}{
		{"bare trigger", "Jarvis", audio.ModeCommand, "jarvis", ""},
		{"trigger with payload", "jarvis open safari", audio.ModeCommand, "jarvis", "open safari"},
		{"case and punctuation", "Hey, Jarvis! Open Safari.", audio.ModeCommand, "jarvis", "hey open safari"},
		{"dictation trigger", "type hello world", audio.ModeDictation, "type", "hello world"},
		{"second dictation trigger", "Dictate: a quick note", audio.ModeDictation, "dictate", "a quick note"},
		{"command wins the rung", "type jarvis notes", audio.ModeCommand, "jarvis", "type notes"},
		{"fused trigger via substring", "jarvisplease help", audio.ModeCommand, "jarvis", "please help"},
		{"substring rung is lenient", "prototype notes", audio.ModeDictation, "type", "proto notes"},
		{"no trigger defaults to dictation", "hello there", audio.ModeDictation, "", "hello there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := m.Detect(tt.in)
			require.True(t, det.Detected)
			assert.Equal(t, tt.mode, det.Mode)
			assert.Equal(t, tt.trigger, det.Trigger)
			assert.Equal(t, tt.text, det.Text)
		})
	}
}

func TestDetectRejectsUnusableText(t *testing.T) {
	m := NewMatcher(nil, nil)
	for _, in := range []string{"", "   ", "?!.", "\n\t"} {
		assert.False(t, m.Detect(in).Detected, "input %q", in)
	}
}

func TestDetectCustomPhrases(t *testing.T) {
	m := NewMatcher([]string{"Hey Computer"}, []string{"take a note"})

	det := m.Detect("hey computer open mail")
	require.True(t, det.Detected)
	assert.Equal(t, audio.ModeCommand, det.Mode)
	assert.Equal(t, "hey computer", det.Trigger)
	assert.Equal(t, "open mail", det.Text)

	det = m.Detect("please take a note groceries")
	require.True(t, det.Detected)
	assert.Equal(t, audio.ModeDictation, det.Mode)
	assert.Equal(t, "take a note", det.Trigger)
	assert.Equal(t, "please groceries", det.Text)
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello,   World!", "hello world"},
		{"JARVIS", "jarvis"},
		{"one\ttwo\nthree", "one two three"},
		{"...", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in), "input %q", tt.in)
	}
}
