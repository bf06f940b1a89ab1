package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{name: "defaults", args: nil, want: options{}},
		{
			name: "single run",
			args: []string{"-config", "c.yaml", "-once", "-query", "golang", "-max", "5"},
			want: options{configPath: "c.yaml", once: true, query: "golang", maxItems: 5},
		},
		{name: "migrate", args: []string{"-migrate"}, want: options{migrate: true}},
		{name: "negative max", args: []string{"-max", "-1"}, wantErr: true},
		{name: "unknown flag", args: []string{"-verbose"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseFlags(tt.args, &bytes.Buffer{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-nope"}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Empty(t, stdout.String())
}

func TestRunReportsMissingConfig(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "load config failed")
}
