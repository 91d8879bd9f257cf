// Package trigger classifies transcribed utterances and turns them into
// recording sessions. The matcher decides whether an utterance names a
// trigger phrase; the dispatcher owns the probe-transcribe-record pipeline
// behind the always-on listener.
package trigger

import (
	"strings"
	"unicode"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
)

// Default trigger phrases.
var (
	DefaultCommandPhrases   = []string{"jarvis"}
	DefaultDictationPhrases = []string{"type", "dictate"}
)

// Detection is the outcome of classifying one utterance. Detected is false
// only when the text was unusable; an utterance with no trigger phrase is
// still detected, as dictation.
type Detection struct {
	Detected bool
	Mode     audio.Mode
	// Trigger is the matched phrase, normalized. Empty for plain dictation.
	Trigger string
	// Text is the utterance with the matched phrase stripped.
	Text string
}

// Matcher holds the configured trigger phrases, pre-normalized.
type Matcher struct {
	command   []string
	dictation []string
}

func NewMatcher(command, dictation []string) *Matcher {
	if len(command) == 0 {
		command = DefaultCommandPhrases
	}
	if len(dictation) == 0 {
		dictation = DefaultDictationPhrases
	}
	return &Matcher{
		command:   normalizeAll(command),
		dictation: normalizeAll(dictation),
	}
}

// Detect matches raw against the trigger phrases. Matching runs in rungs of
// decreasing strictness: whole-utterance equality, then word-boundary
// containment, then plain substring. Within each rung command phrases are
// tried before dictation phrases, so a command trigger always wins a tie.
func (m *Matcher) Detect(raw string) Detection {
	text := normalize(raw)
	if text == "" {
		return Detection{}
	}

	rungs := []func(text, phrase string) (string, bool){
		matchExact,
		matchWord,
		matchSubstring,
	}
	sets := []struct {
		mode    audio.Mode
		phrases []string
	}{
		{audio.ModeCommand, m.command},
		{audio.ModeDictation, m.dictation},
	}
	for _, match := range rungs {
		for _, set := range sets {
			for _, phrase := range set.phrases {
				if rest, ok := match(text, phrase); ok {
					return Detection{
						Detected: true,
						Mode:     set.mode,
						Trigger:  phrase,
						Text:     rest,
					}
				}
			}
		}
	}

	// No trigger named: the whole utterance is dictation.
	return Detection{Detected: true, Mode: audio.ModeDictation, Text: text}
}

func matchExact(text, phrase string) (string, bool) {
	if text != phrase {
		return "", false
	}
	return "", true
}

func matchWord(text, phrase string) (string, bool) {
	padded := " " + text + " "
	needle := " " + phrase + " "
	i := strings.Index(padded, needle)
	if i < 0 {
		return "", false
	}
	return collapse(padded[:i] + " " + padded[i+len(needle):]), true
}

func matchSubstring(text, phrase string) (string, bool) {
	i := strings.Index(text, phrase)
	if i < 0 {
		return "", false
	}
	return collapse(text[:i] + " " + text[i+len(phrase):]), true
}

// normalize lowercases, turns punctuation into spaces and collapses runs of
// whitespace, so "Hey, Jarvis!" and "hey jarvis" compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return collapse(b.String())
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
