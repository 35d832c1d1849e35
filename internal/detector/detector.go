// Package detector checks that rephrase input is written in the source
// language of the pivot phrase tables.
package detector

import (
	"fmt"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over the given languages, or over every supported
// language when none are given. A single language is rejected: lingua needs
// at least two candidates to choose between.
func New(languages ...lingua.Language) (*Detector, error) {
	switch len(languages) {
	case 0:
		return &Detector{detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build()}, nil
	case 1:
		return nil, fmt.Errorf("detector needs at least two languages, got only %s", languages[0])
	}
	return &Detector{detector: lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()}, nil
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// Mismatch reports whether text was confidently detected as a language other
// than expectedISO (ISO 639-1, any case). Undetected text never mismatches.
func (d *Detector) Mismatch(text, expectedISO string) (string, bool) {
	code, ok := d.DetectISO(text)
	if !ok || expectedISO == "" {
		return code, false
	}
	return code, !strings.EqualFold(code, expectedISO)
}
