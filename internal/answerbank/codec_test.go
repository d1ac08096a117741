package answerbank

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/applypilot/internal/form"
)

// legacyBank is a bank written by the earlier appender: no header, "Choice" type name,
// repeated questions and a blank answer.
const legacyBank = `
### Question: Berapa tahun pengalaman Anda sebagai Guru?
### Type: Choice
### Options: Kurang dari 1 tahun | 1 tahun | 2 tahun
**Answer:** 1 tahun

---

### Question: Keahlian mengajar
### Type: MultiChoice
### Options: Matematika | Bahasa Inggris | IPA
**Answer:** Matematika | IPA

---

### Question: Ekspektasi gaji bulanan
### Type: Text
**Answer:**

---
### Question: Kota domisili
### Type: Dropdown
### Options: Jakarta | Bandung
**Answer:** Bandung
### Question: Block without separator
### Type: Slider
**Answer:** 3
`

func TestMarkdownCodec_DecodeLegacy(t *testing.T) {
	entries, err := MarkdownCodec{}.Decode(strings.NewReader(legacyBank))
	require.NoError(t, err)

	want := []Entry{
		{Question: "Berapa tahun pengalaman Anda sebagai Guru?", Type: form.SingleChoice, Options: []string{"Kurang dari 1 tahun", "1 tahun", "2 tahun"}, Answer: "1 tahun"},
		{Question: "Keahlian mengajar", Type: form.MultiChoice, Options: []string{"Matematika", "Bahasa Inggris", "IPA"}, Answer: "Matematika | IPA"},
		{Question: "Ekspektasi gaji bulanan", Type: form.Text, Answer: ""},
		{Question: "Kota domisili", Type: form.Dropdown, Options: []string{"Jakarta", "Bandung"}, Answer: "Bandung"},
		{Question: "Block without separator", Type: form.Text, Answer: "3"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("decoded entries mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkdownCodec_EncodeIsReadable(t *testing.T) {
	entries := []Entry{
		{Question: "Kota domisili", Type: form.Dropdown, Options: []string{"Jakarta", "Bandung"}, Answer: "Bandung"},
		{Question: "Nomor telepon", Type: form.Text, Answer: "0812"},
	}
	var buf bytes.Buffer
	require.NoError(t, MarkdownCodec{}.Encode(&buf, entries))

	out := buf.String()
	assert.Contains(t, out, "### Question: Kota domisili\n### Type: Dropdown\n### Options: Jakarta | Bandung\n**Answer:** Bandung\n")
	assert.NotContains(t, out, "### Options: \n", "text questions carry no options line")

	back, err := MarkdownCodec{}.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, entries, back)
}

func TestYAMLCodec(t *testing.T) {
	entries := []Entry{
		{Question: "Keahlian mengajar", Type: form.MultiChoice, Options: []string{"IPA", "IPS"}, Answer: "IPA | IPS"},
	}
	var buf bytes.Buffer
	require.NoError(t, YAMLCodec{}.Encode(&buf, entries))
	assert.Contains(t, buf.String(), "type: MultiChoice")

	back, err := YAMLCodec{}.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, entries, back)

	empty, err := YAMLCodec{}.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = YAMLCodec{}.Decode(strings.NewReader("- question: x\n  type: Slider\n"))
	assert.Error(t, err, "unknown control types are rejected in yaml")
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("yaml")
	require.NoError(t, err)
	assert.IsType(t, YAMLCodec{}, c)

	c, err = CodecFor("markdown")
	require.NoError(t, err)
	assert.IsType(t, MarkdownCodec{}, c)

	_, err = CodecFor("csv")
	assert.Error(t, err)
}
