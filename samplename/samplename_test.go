package samplename

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(t *testing.T, text string) *sam.Header {
	t.Helper()
	h, err := sam.NewHeader([]byte(text), nil)
	require.NoError(t, err)
	return h
}

func TestNames(t *testing.T) {
	for _, c := range []struct {
		text string
		want []string
	}{
		{"@RG\tID:a\tSM:NA12878\n", []string{"NA12878"}},
		{"@RG\tID:a\tSM:s2\n@RG\tID:b\tSM:s1\n@RG\tID:c\tSM:s2\n", []string{"s1", "s2"}},
		{"@RG\tID:a\n", nil},
		{"@HD\tVN:1.5\n", []string{}},
	} {
		assert.Equal(t, c.want, Names(header(t, c.text)), c.text)
	}
}

func TestFromBAM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bam")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, header(t, "@RG\tID:a\tSM:NA12878\n"), 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	names, err := FromBAM(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"NA12878"}, names)

	_, err = FromBAM(filepath.Join(t.TempDir(), "missing.bam"))
	assert.Error(t, err)
}
