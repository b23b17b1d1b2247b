package clipboard

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// fakeClipboard swaps the system clipboard for a string for the duration of a test
func fakeClipboard(t *testing.T, writeErr error) *string {
	t.Helper()
	var got string
	oldWrite, oldUnsupported := write, unsupported
	write = func(text string) error {
		if writeErr != nil {
			return writeErr
		}
		got = text
		return nil
	}
	unsupported = func() bool { return false }
	t.Cleanup(func() { write, unsupported = oldWrite, oldUnsupported })
	return &got
}

func TestClipboardError(t *testing.T) {
	err := NewClipboardError()
	assert.Equal(t, runtime.GOOS, err.OS)
	assert.NotEmpty(t, err.Error())

	var clipErr *ClipboardError
	assert.True(t, errors.As(err, &clipErr))
}

func TestCopyWithFallback(t *testing.T) {
	got := fakeClipboard(t, nil)

	msg, err := CopyWithFallback("hello")
	require.NoError(t, err)
	assert.Equal(t, "Copied to clipboard!", msg)
	assert.Equal(t, "hello", *got)
}

func TestCopyWrapsWriteFailures(t *testing.T) {
	fakeClipboard(t, errors.New("xclip exited 1"))

	_, err := CopyWithFallback("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to copy to clipboard")
}

func TestCopyUnsupported(t *testing.T) {
	fakeClipboard(t, nil)
	unsupported = func() bool { return true }

	assert.False(t, IsClipboardAvailable())
	_, err := CopyWithFallback("hello")
	var clipErr *ClipboardError
	assert.True(t, errors.As(err, &clipErr))
}

func TestCopyCapsulePayloads(t *testing.T) {
	got := fakeClipboard(t, nil)
	c := &models.Capsule{ID: "spinner", Code: "export const Spinner = () => null", NPMPackage: "@capsules/spinner"}

	_, err := CopyCapsule(c, PayloadCode)
	require.NoError(t, err)
	assert.Equal(t, c.Code, *got)

	_, err = CopyCapsule(c, PayloadInstall)
	require.NoError(t, err)
	assert.Equal(t, "npm install @capsules/spinner", *got)

	_, err = CopyCapsule(c, PayloadID)
	require.NoError(t, err)
	assert.Equal(t, "spinner", *got)

	_, err = CopyCapsule(&models.Capsule{ID: "bare"}, PayloadInstall)
	assert.EqualError(t, err, "capsule 'bare' has no npm package")

	_, err = Text(c, "zip")
	assert.Error(t, err)
}

func TestGetInstallInstructions(t *testing.T) {
	instructions := GetInstallInstructions()
	assert.NotEmpty(t, instructions)
	if runtime.GOOS == "linux" {
		assert.Contains(t, instructions, "xclip")
	}
}
