package driver_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"repcrec/internal/driver"
)

func runScript(t *testing.T, script string, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	code = driver.Run(strings.NewReader(script), out, errOut, args, nil, nil)
	return out.String(), errOut.String(), code
}

func TestRunEndToEndScript(t *testing.T) {
	script := strings.Join([]string{
		"begin(T1)",
		"R(T1,x1)",
		"W(T1,x1,101)",
		"end(T1)",
		"dump()",
	}, "\n")

	out, errOut, code := runScript(t, script)
	require.Equal(t, 0, code)
	require.Empty(t, errOut)
	require.Contains(t, out, "T1 begins")
	require.Contains(t, out, "x1: 10")
	require.Contains(t, out, "T1 commits")
	require.Contains(t, out, "site 2 - x1: 101")
}

func TestRunAbortsOnMalformedCommand(t *testing.T) {
	_, errOut, code := runScript(t, "begin(T1)\nnot-a-command\ndump()")
	require.Equal(t, 1, code)
	require.NotEmpty(t, errOut)
}

func TestRunContinuesOnSemanticError(t *testing.T) {
	script := strings.Join([]string{
		"begin(T1)",
		"begin(T1)", // duplicate: semantic error, not fatal
		"dump()",
	}, "\n")

	out, errOut, code := runScript(t, script)
	require.Equal(t, 0, code)
	require.NotEmpty(t, errOut)
	require.Contains(t, out, "site 1 -")
}

func TestRunMissingInputFile(t *testing.T) {
	_, errOut, code := runScript(t, "", "--input", "/no/such/file.txt")
	require.Equal(t, 1, code)
	require.NotEmpty(t, errOut)
}

func TestRunHelp(t *testing.T) {
	out, _, code := runScript(t, "", "--help")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Usage: repcrec")
}
