package upnp

import (
	"errors"
	"fmt"
)

// ErrSpeakerNotFound is returned when a speaker UUID is not in the cache
var ErrSpeakerNotFound = errors.New("upnp speaker not found")

// UPnP error codes from the AVTransport specification
const (
	upnpErrTransitionNotAvailable = 701
	upnpErrFormatNotSupported     = 704
	upnpErrTransportLocked        = 705
	upnpErrIllegalMIMEType        = 714
	upnpErrResourceNotFound       = 716
	upnpErrNotCoordinator         = 800
)

// UPnPError is a SOAP fault returned by a device
type UPnPError struct {
	Code        int
	Description string
}

func (e *UPnPError) Error() string {
	return fmt.Sprintf("UPnP error %d: %s", e.Code, e.Description)
}

func upnpErrorDescription(code int) string {
	switch code {
	case upnpErrTransitionNotAvailable:
		return "Transition not available (speaker may be grouped elsewhere)"
	case upnpErrFormatNotSupported:
		return "Format not supported by device"
	case upnpErrTransportLocked:
		return "Transport is locked"
	case upnpErrIllegalMIMEType:
		return "Illegal MIME type (check the stream's Content-Type header)"
	case upnpErrResourceNotFound:
		return "Resource not found (URL unreachable from the speaker's network)"
	case upnpErrNotCoordinator:
		return "Not a coordinator (send command to the group coordinator)"
	default:
		return "Unknown error"
	}
}
