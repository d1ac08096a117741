package elicit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/applypilot/internal/form"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var city = form.Descriptor{
	Text:    "Kota domisili",
	Type:    form.Dropdown,
	Options: []string{"Jakarta", "Bandung", "Surabaya"},
}

var skills = form.Descriptor{
	Text:    "Keahlian",
	Type:    form.MultiChoice,
	Options: []string{"Excel", "Canva", "Photoshop"},
}

func TestInterpret(t *testing.T) {
	phone := form.Descriptor{Text: "Nomor telepon", Type: form.Text}

	tests := []struct {
		name string
		d    form.Descriptor
		raw  string
		want string
	}{
		{"number picks option", city, "2\n", "Bandung"},
		{"empty defaults to first option", city, "\n", "Jakarta"},
		{"out of range passes through", city, "9", "9"},
		{"free text passes through", city, " Medan ", "Medan"},
		{"multi numbers join labels", skills, "3, 1", "Photoshop | Excel"},
		{"multi single number", skills, "2", "Canva"},
		{"multi mixed", skills, "1,Figma,", "Excel | Figma"},
		{"text keeps digits", phone, "0812\n", "0812"},
		{"text empty stays empty", phone, "\n", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Interpret(tc.d, tc.raw))
		})
	}
}

func TestTerminal_Elicit(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("2\n1,3\n"), &out, zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := term.Elicit(ctx, city)
	require.NoError(t, err)
	assert.Equal(t, "Bandung", got)

	rendered := out.String()
	assert.Contains(t, rendered, "Kota domisili")
	assert.Contains(t, rendered, "type: Dropdown")
	assert.Contains(t, rendered, "1) Jakarta")
	assert.Contains(t, rendered, "3) Surabaya")

	got, err = term.Elicit(ctx, skills)
	require.NoError(t, err)
	assert.Equal(t, "Excel | Photoshop", got)
	assert.Contains(t, out.String(), "separated by commas")

	// Draining to EOF lets the pump exit.
	_, err = term.Elicit(ctx, city)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminal_ElicitHonoursCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	term := NewTerminal(pr, io.Discard, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := term.Elicit(ctx, city)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, pw.Close())
	_, err = term.Elicit(context.Background(), city)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminal_ReplyToCancelledPromptIsDiscarded(t *testing.T) {
	pr, pw := io.Pipe()
	term := NewTerminal(pr, io.Discard, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := term.Elicit(ctx, skills)
	require.ErrorIs(t, err, context.Canceled)

	// The late reply is read while no prompt is showing and waits in the pump.
	_, err = pw.Write([]byte("1,3\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	written := make(chan error, 1)
	go func() {
		_, err := pw.Write([]byte("2\n"))
		written <- err
	}()

	got, err := term.Elicit(context.Background(), city)
	require.NoError(t, err)
	assert.Equal(t, "Bandung", got)
	require.NoError(t, <-written)

	require.NoError(t, pw.Close())
	_, err = term.Elicit(context.Background(), city)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminal_LastLineWithoutNewline(t *testing.T) {
	term := NewTerminal(strings.NewReader("Medan"), io.Discard, zap.NewNop())

	got, err := term.Elicit(context.Background(), form.Descriptor{Text: "Kota lahir", Type: form.Text})
	require.NoError(t, err)
	assert.Equal(t, "Medan", got)

	_, err = term.Elicit(context.Background(), city)
	assert.ErrorIs(t, err, io.EOF)
}

func TestUnattended(t *testing.T) {
	_, err := Unattended{}.Elicit(context.Background(), city)
	assert.ErrorIs(t, err, ErrUnattended)

	assert.IsType(t, Unattended{}, ForStdin(true, zap.NewNop()))
}
