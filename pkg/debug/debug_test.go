package debug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/walteh/semsync/pkg/debug"
)

func TestFormatCaller(t *testing.T) {
	assert.Equal(t, "main.go:42", debug.FormatCaller("/home/me/project/main.go:42", false))
	assert.Equal(t, "main.go", debug.FormatCaller("main.go", false))
}

func TestFileNameOfPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "nested path", in: "a/b/c.go", want: "c.go"},
		{name: "bare file", in: "c.go", want: "c.go"},
		{name: "trailing slash", in: "a/b/", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, debug.FileNameOfPath(tt.in))
		})
	}
}
