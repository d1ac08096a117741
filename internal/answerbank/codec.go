package answerbank

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xkilldash9x/applypilot/internal/form"
	"gopkg.in/yaml.v3"
)

// Codec serializes the whole bank for file storage.
type Codec interface {
	Encode(w io.Writer, entries []Entry) error
	Decode(r io.Reader) ([]Entry, error)
}

// CodecFor returns the codec registered under name ("markdown" or "yaml").
func CodecFor(name string) (Codec, error) {
	switch name {
	case "markdown", "md":
		return MarkdownCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	}
	return nil, fmt.Errorf("unknown answer bank format %q", name)
}

// MarkdownCodec reads and writes the human-editable bank format:
//
//	### Question: Berapa ekspektasi gaji bulanan Anda?
//	### Type: Dropdown
//	### Options: Rp 4 jt | Rp 5 jt
//	**Answer:** Rp 5 jt
//
//	---
type MarkdownCodec struct{}

var (
	mdQuestion = regexp.MustCompile(`^###\s*Question:\s*(.+)$`)
	mdType     = regexp.MustCompile(`^###\s*Type:\s*(.*)$`)
	mdOptions  = regexp.MustCompile(`^###\s*Options:\s*(.*)$`)
	mdAnswer   = regexp.MustCompile(`^\*\*Answer:\*\*\s*(.*)$`)
)

// Encode writes one block per entry.
func (MarkdownCodec) Encode(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Answer Bank")
	for _, e := range entries {
		fmt.Fprintf(bw, "\n### Question: %s\n", e.Question)
		fmt.Fprintf(bw, "### Type: %s\n", e.Type)
		if len(e.Options) > 0 {
			fmt.Fprintf(bw, "### Options: %s\n", form.JoinChoices(e.Options))
		}
		fmt.Fprintf(bw, "**Answer:** %s\n\n---\n", e.Answer)
	}
	return bw.Flush()
}

// Decode parses blocks separated by "---" lines. Blocks without a question line are skipped;
// an unknown type degrades to Text.
func (MarkdownCodec) Decode(r io.Reader) ([]Entry, error) {
	var (
		entries []Entry
		cur     Entry
		have    bool
	)
	flush := func() {
		if have && cur.Question != "" {
			entries = append(entries, cur)
		}
		cur, have = Entry{}, false
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "---" {
			flush()
			continue
		}
		if m := mdQuestion.FindStringSubmatch(line); m != nil {
			if have {
				flush()
			}
			cur.Question = strings.TrimSpace(m[1])
			have = true
			continue
		}
		if !have {
			continue
		}
		switch {
		case mdType.MatchString(line):
			t, err := form.ParseControlType(mdType.FindStringSubmatch(line)[1])
			if err != nil {
				t = form.Text
			}
			cur.Type = t
		case mdOptions.MatchString(line):
			cur.Options = form.SplitChoices(mdOptions.FindStringSubmatch(line)[1])
		case mdAnswer.MatchString(line):
			cur.Answer = strings.TrimSpace(mdAnswer.FindStringSubmatch(line)[1])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read markdown bank: %w", err)
	}
	flush()
	return entries, nil
}

// YAMLCodec stores the bank as a YAML sequence of entries.
type YAMLCodec struct{}

// Encode writes entries as a YAML document.
func (YAMLCodec) Encode(w io.Writer, entries []Entry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if entries == nil {
		entries = []Entry{}
	}
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode yaml bank: %w", err)
	}
	return enc.Close()
}

// Decode reads a YAML sequence of entries. An empty document is an empty bank.
func (YAMLCodec) Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode yaml bank: %w", err)
	}
	return entries, nil
}
