// Package clipboard copies capsule code and snippets to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// ClipboardError represents an error when no clipboard utility is available
type ClipboardError struct {
	OS      string
	Message string
}

func (e *ClipboardError) Error() string {
	return e.Message
}

// NewClipboardError creates a new ClipboardError with installation instructions
func NewClipboardError() *ClipboardError {
	return &ClipboardError{
		OS:      runtime.GOOS,
		Message: "no clipboard utility found. " + GetInstallInstructions(),
	}
}

// Payload selects what part of a capsule is copied
type Payload string

const (
	PayloadCode    Payload = "code"
	PayloadID      Payload = "id"
	PayloadInstall Payload = "install"
)

// Payloads lists the accepted payload names
var Payloads = []Payload{PayloadCode, PayloadID, PayloadInstall}

// write and unsupported are replaced in tests
var (
	write       = clipboard.WriteAll
	unsupported = func() bool { return clipboard.Unsupported }
)

// Copy copies text to the system clipboard
func Copy(text string) error {
	if unsupported() {
		return NewClipboardError()
	}
	return write(text)
}

// CopyWithFallback attempts to copy to clipboard and returns a status message
func CopyWithFallback(text string) (string, error) {
	if err := Copy(text); err != nil {
		var clipErr *ClipboardError
		if errors.As(err, &clipErr) {
			return "", err
		}
		return "", fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return "Copied to clipboard!", nil
}

// Text returns the clipboard text for a capsule payload
func Text(c *models.Capsule, payload Payload) (string, error) {
	switch payload {
	case PayloadCode, "":
		if strings.TrimSpace(c.Code) == "" {
			return "", fmt.Errorf("capsule '%s' has no code", c.ID)
		}
		return c.Code, nil
	case PayloadID:
		return c.ID, nil
	case PayloadInstall:
		if c.NPMPackage == "" {
			return "", fmt.Errorf("capsule '%s' has no npm package", c.ID)
		}
		return "npm install " + c.NPMPackage, nil
	default:
		return "", fmt.Errorf("unknown payload %q", payload)
	}
}

// CopyCapsule copies the chosen payload of a capsule
func CopyCapsule(c *models.Capsule, payload Payload) (string, error) {
	text, err := Text(c, payload)
	if err != nil {
		return "", err
	}
	return CopyWithFallback(text)
}

// IsClipboardAvailable checks if clipboard functionality is available
func IsClipboardAvailable() bool {
	return !unsupported()
}

// GetInstallInstructions returns installation instructions for clipboard utilities
func GetInstallInstructions() string {
	switch runtime.GOOS {
	case "linux":
		return "Install a clipboard utility:\n" +
			"  • Ubuntu/Debian: sudo apt install xclip\n" +
			"  • Fedora/RHEL: sudo dnf install xclip\n" +
			"  • Arch: sudo pacman -S xclip\n" +
			"  • For Wayland: install wl-clipboard"
	case "darwin":
		return "pbcopy should be available by default on macOS"
	case "windows":
		return "clip should be available by default on Windows"
	default:
		return fmt.Sprintf("Clipboard not supported on %s", runtime.GOOS)
	}
}
