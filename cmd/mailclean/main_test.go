package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contacts = "Name,Email\nUser,user@gmial.com\nAdmin,admin@company.com\nJane,jane@example.com\nJane2,Jane@Example.com\n"

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_CSV(t *testing.T) {
	in := writeInput(t, "contacts.csv", contacts)
	reports := filepath.Join(t.TempDir(), "reports")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-in", in, "-reports", reports}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	out, err := os.ReadFile(strings.TrimSuffix(in, ".csv") + "_cleaned.csv")
	require.NoError(t, err)
	assert.Contains(t, string(out), "user@gmail.com")
	assert.NotContains(t, string(out), "admin@company.com")
	assert.Equal(t, 1, strings.Count(strings.ToLower(string(out)), "jane@example.com"), "duplicate row dropped")

	for _, name := range []string{"rejected.csv", "changes.csv", "duplicates.csv"} {
		_, err := os.Stat(filepath.Join(reports, name))
		assert.NoError(t, err, name)
	}

	summary := stdout.String()
	assert.Contains(t, summary, "accepted")
	assert.Contains(t, summary, "duplicates")
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	in := writeInput(t, "contacts.csv", contacts)
	reports := t.TempDir()
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{
		"-in", in,
		"-reports", reports,
		"-keep-roles",
		"-columns", "Email",
		"-report-format", "json",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	out, err := os.ReadFile(strings.TrimSuffix(in, ".csv") + "_cleaned.csv")
	require.NoError(t, err)
	assert.Contains(t, string(out), "admin@company.com", "role account kept")

	data, err := os.ReadFile(filepath.Join(reports, "rejected.json"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(data)), "["), string(data))
}

func TestRun_Errors(t *testing.T) {
	csvIn := writeInput(t, "contacts.csv", contacts)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"missing -in", nil, exitUsage, "-in is required"},
		{"unknown flag", []string{"-bogus"}, exitUsage, ""},
		{"missing input file", []string{"-in", filepath.Join(t.TempDir(), "absent.csv")}, exitFatal, "absent.csv"},
		{"unsupported format", []string{"-in", writeInput(t, "list.pdf", "x")}, exitFatal, "FILE002"},
		{"output format mismatch", []string{"-in", csvIn, "-out", filepath.Join(t.TempDir(), "out.xlsx")}, exitFatal, "input's format"},
		{"threshold out of range", []string{"-in", csvIn, "-threshold", "0.1", "-reports", t.TempDir()}, exitFatal, "VAL001"},
		{"no email column", []string{"-in", writeInput(t, "people.csv", "Name\nAda\n"), "-reports", t.TempDir()}, exitFatal, "FILE003"},
		{"bad report format", []string{"-in", csvIn, "-report-format", "pdf"}, exitFatal, "VAL003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code, stderr.String())
			if tt.wantErr != "" {
				assert.Contains(t, stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestRun_Interrupted(t *testing.T) {
	in := writeInput(t, "contacts.csv", contacts)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer

	code := run(ctx, []string{"-in", in, "-reports", t.TempDir()}, &stdout, &stderr)
	assert.Equal(t, exitInterrupted, code, stderr.String())
	assert.Contains(t, stderr.String(), "interrupted")

	_, err := os.Stat(strings.TrimSuffix(in, ".csv") + "_cleaned.csv")
	assert.NoError(t, err, "partial output is still written")
}

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, "dir/contacts_cleaned.xlsx", defaultOutput("dir/contacts.xlsx"))
	assert.Equal(t, "list_cleaned.csv", defaultOutput("list.csv"))
}
