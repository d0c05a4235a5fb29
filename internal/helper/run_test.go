package helper

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorPlanDiscardsUnsetStreams(t *testing.T) {
	p := &descriptorPlan{mailBuf: &bytes.Buffer{}}
	require.Equal(t, io.Discard, p.stdoutWriter())
	require.Equal(t, io.Discard, p.stderrWriter())
}

func TestDescriptorPlanTeesToMailBuffer(t *testing.T) {
	p := &descriptorPlan{mailBuf: &bytes.Buffer{}, mailOut: true}
	w := p.stdoutWriter()
	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", p.mailBuf.String())
}
