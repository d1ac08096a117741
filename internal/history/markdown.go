package history

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	markdownHeader = "# Applied Jobs History\n\n| Job Title | Location | Salary | Link |\n|---|---|---|---|\n"
	dryRunTag      = " (DRY RUN)"
)

var (
	linkPattern = regexp.MustCompile(`\[.*?\]\((.*?)\)`)
	cellEscaper = strings.NewReplacer("|", "/", "\n", " ", "\r", " ")
)

// MarkdownBackend appends rows to a markdown table file.
type MarkdownBackend struct {
	path string
}

// NewMarkdownBackend writes the history table at path.
func NewMarkdownBackend(path string) *MarkdownBackend {
	return &MarkdownBackend{path: path}
}

// Load parses every row. Only the link, title and dry-run tag are recovered; the table is a
// human log first.
func (m *MarkdownBackend) Load(_ context.Context) ([]Record, error) {
	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", m.path, err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		match := linkPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		rec := Record{URL: CleanURL(match[1])}
		cells := strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
		if len(cells) >= 4 {
			title := strings.TrimSpace(cells[0])
			rec.DryRun = strings.HasSuffix(title, dryRunTag)
			rec.Title = strings.TrimSuffix(title, dryRunTag)
			rec.Location = strings.TrimSpace(cells[1])
			rec.Salary = strings.TrimSpace(cells[2])
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.path, err)
	}
	return records, nil
}

// Append adds one row, writing the table header first when the file is new.
func (m *MarkdownBackend) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	_, statErr := os.Stat(m.path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", m.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if isNew {
		w.WriteString(markdownHeader)
	}
	tag := ""
	if rec.DryRun {
		tag = dryRunTag
	}
	fmt.Fprintf(w, "| %s%s | %s | %s | [Link](%s) |\n",
		cellEscaper.Replace(rec.Title), tag,
		cellEscaper.Replace(rec.Location),
		cellEscaper.Replace(rec.Salary),
		CleanURL(rec.URL),
	)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", m.path, err)
	}
	return f.Sync()
}
