package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveEditorPrefersVisualOverEditor(t *testing.T) {
	t.Setenv("TERM", "xterm")
	t.Setenv("VISUAL", "nano -w")
	t.Setenv("EDITOR", "emacs")

	editor, err := resolveEditor()
	require.NoError(t, err)
	require.Equal(t, []string{"nano", "-w"}, editor)
}

func TestResolveEditorFallsBackToVi(t *testing.T) {
	t.Setenv("TERM", "xterm")
	os.Unsetenv("VISUAL")
	os.Unsetenv("EDITOR")

	editor, err := resolveEditor()
	require.NoError(t, err)
	require.Equal(t, []string{"vi"}, editor)
}

func TestResolveEditorDisabledOnDumbTerminal(t *testing.T) {
	t.Setenv("TERM", "dumb")

	_, err := resolveEditor()
	require.Error(t, err)
}
