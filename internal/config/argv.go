package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// FilePlaceholder marks where a playback command receives the clip path. A
// command without it gets the path appended.
const FilePlaceholder = "{file}"

// ParseCommand splits a shell-like command line into argv. Quotes group words
// and a backslash escapes the next rune; nothing else is interpreted.
func ParseCommand(raw string) (CommandConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return CommandConfig{Raw: raw}, nil
	}

	var sc argvScanner
	for _, r := range raw {
		sc.feed(r)
	}
	argv, err := sc.finish()
	if err != nil {
		return CommandConfig{}, fmt.Errorf("%w in %q", err, raw)
	}

	placeholders := 0
	for _, arg := range argv {
		placeholders += strings.Count(arg, FilePlaceholder)
	}
	if placeholders > 1 {
		return CommandConfig{}, fmt.Errorf("%s may appear at most once in %q", FilePlaceholder, raw)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

// Args returns argv with path substituted for the placeholder or appended.
func (c CommandConfig) Args(path string) []string {
	out := make([]string, 0, len(c.Argv)+1)
	substituted := false
	for _, arg := range c.Argv {
		if strings.Contains(arg, FilePlaceholder) {
			arg = strings.ReplaceAll(arg, FilePlaceholder, path)
			substituted = true
		}
		out = append(out, arg)
	}
	if !substituted {
		out = append(out, path)
	}
	return out
}

type argvScanner struct {
	argv    []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (s *argvScanner) feed(r rune) {
	switch {
	case s.escaped:
		s.escaped = false
		s.add(r)
	case r == '\\':
		s.escaped = true
		s.inWord = true
	case s.quote != 0 && r == s.quote:
		s.quote = 0
	case s.quote != 0:
		s.add(r)
	case r == '\'' || r == '"':
		s.quote = r
		s.inWord = true
	case unicode.IsSpace(r):
		s.flush()
	default:
		s.add(r)
	}
}

func (s *argvScanner) add(r rune) {
	s.word.WriteRune(r)
	s.inWord = true
}

func (s *argvScanner) flush() {
	if !s.inWord {
		return
	}
	s.argv = append(s.argv, s.word.String())
	s.word.Reset()
	s.inWord = false
}

func (s *argvScanner) finish() ([]string, error) {
	switch {
	case s.escaped:
		return nil, errors.New("unterminated escape")
	case s.quote != 0:
		return nil, errors.New("unterminated quote")
	}
	s.flush()
	return s.argv, nil
}
