package identity

import (
	"errors"
	"fmt"
	"runtime"
)

// Category is the normalized failure taxonomy for one resolution attempt.
type Category string

const (
	// CategoryToolUnavailable means the card utility is not installed.
	CategoryToolUnavailable Category = "tool_unavailable"

	// CategoryReaderUnavailable means no reader hardware was detected, or
	// the slot listing itself failed.
	CategoryReaderUnavailable Category = "reader_unavailable"

	// CategoryCardAbsent means a reader is attached but holds no card.
	CategoryCardAbsent Category = "card_absent"

	// CategoryCertificateUnreadable means a card is present but its
	// certificate could not be listed or carried no subject.
	CategoryCertificateUnreadable Category = "certificate_unreadable"

	// CategoryDirectoryUnavailable means the directory is disabled or every
	// search failed. Never terminal.
	CategoryDirectoryUnavailable Category = "directory_unavailable"

	// CategoryParseAmbiguous means the subject was found but its common name
	// could not be split into names. Never terminal.
	CategoryParseAmbiguous Category = "parse_ambiguous"

	// CategoryInternal is a programming error.
	CategoryInternal Category = "internal"
)

// Machine-stable error codes returned to the form UI.
const (
	CodeToolMissing    = "OpenSC not installed"
	CodeSlotListing    = "Error reading smart card"
	CodeNoReader       = "No card readers found"
	CodeNoCard         = "No card inserted"
	CodeUnreadable     = "Could not read CAC data"
	CodeInternal       = "CAC reader error"
	msgNoReader        = "Please ensure your card reader is connected"
	msgNoCard          = "Please insert your CAC into the reader"
	msgAmbiguousSlots  = "Card presence could not be confirmed. Reseat your CAC and try again"
	msgUnreadable      = "Check that card reader drivers are installed"
	msgInstallDarwin   = "Install with: brew install opensc"
	msgInstallLinux    = "Install with: sudo apt-get install opensc"
	msgInstallFallback = "Install OpenSC from https://github.com/OpenSC/OpenSC/releases"
)

// ResolutionError ends a resolution attempt with a stable code and an
// operator-facing remediation message.
type ResolutionError struct {
	Category   Category
	Code       string
	Message    string
	Underlying error
}

func (e *ResolutionError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("identity [%s] %s: %s: %v", e.Category, e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("identity [%s] %s: %s", e.Category, e.Code, e.Message)
}

func (e *ResolutionError) Unwrap() error {
	return e.Underlying
}

// NewResolutionError creates a new categorized resolution error.
func NewResolutionError(category Category, code, message string, underlying error) *ResolutionError {
	return &ResolutionError{
		Category:   category,
		Code:       code,
		Message:    message,
		Underlying: underlying,
	}
}

// GetCategory extracts the category from an error chain.
func GetCategory(err error) Category {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Category
	}
	return CategoryInternal
}

// IsTerminal reports whether a category ends the resolution attempt.
func IsTerminal(c Category) bool {
	switch c {
	case CategoryDirectoryUnavailable, CategoryParseAmbiguous:
		return false
	default:
		return true
	}
}

// InstallHint returns the OpenSC install instruction for goos.
func InstallHint(goos string) string {
	switch goos {
	case "darwin":
		return msgInstallDarwin
	case "linux":
		return msgInstallLinux
	default:
		return msgInstallFallback
	}
}

func errToolMissing(err error) *ResolutionError {
	return NewResolutionError(CategoryToolUnavailable, CodeToolMissing, InstallHint(runtime.GOOS), err)
}

func errSlotListing(err error) *ResolutionError {
	return NewResolutionError(CategoryReaderUnavailable, CodeSlotListing, err.Error(), err)
}

func errNoReader() *ResolutionError {
	return NewResolutionError(CategoryReaderUnavailable, CodeNoReader, msgNoReader, nil)
}

func errNoCard(ambiguous bool) *ResolutionError {
	if ambiguous {
		return NewResolutionError(CategoryCardAbsent, CodeNoCard, msgAmbiguousSlots, nil)
	}
	return NewResolutionError(CategoryCardAbsent, CodeNoCard, msgNoCard, nil)
}

func errUnreadable(err error) *ResolutionError {
	return NewResolutionError(CategoryCertificateUnreadable, CodeUnreadable, msgUnreadable, err)
}

func errInternal(message string) *ResolutionError {
	return NewResolutionError(CategoryInternal, CodeInternal, message, nil)
}
