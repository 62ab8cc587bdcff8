package viewer

import (
	"image"

	"image-viewer/internal/media"
	"image-viewer/internal/scaler"
	"image-viewer/internal/thumbnailer"
)

// EventType identifies an outbound event.
type EventType int

const (
	// EventLoadStarted fires when a decode for the selection begins.
	EventLoadStarted EventType = iota
	// EventLoadFinished carries the decoded image for the selection, or a
	// nil Image when the decode failed.
	EventLoadFinished
	// EventScalingFinished carries a viewport-scaled frame together with
	// the request that produced it.
	EventScalingFinished
	// EventThumbnailReady carries a finished thumbnail and its index.
	EventThumbnailReady
	// EventFileAdded and EventFileRemoved mirror directory changes, with
	// indices valid at the moment of the change.
	EventFileAdded
	EventFileRemoved
	// EventSelectionChanged reports the new selection index, including
	// silent shifts caused by files appearing or vanishing elsewhere.
	EventSelectionChanged
	// EventInfo carries a status line such as "[ 3 / 70 ]  cat.jpg ...".
	EventInfo
	// EventError carries a user-facing failure message.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventLoadStarted:
		return "load-started"
	case EventLoadFinished:
		return "load-finished"
	case EventScalingFinished:
		return "scaling-finished"
	case EventThumbnailReady:
		return "thumbnail-ready"
	case EventFileAdded:
		return "file-added"
	case EventFileRemoved:
		return "file-removed"
	case EventSelectionChanged:
		return "selection-changed"
	case EventInfo:
		return "info"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a single outbound notification. Fields beyond Type are filled
// according to the event kind.
type Event struct {
	Type         EventType
	Index        int
	Message      string
	Image        *media.Image
	Scaled       image.Image
	ScaleRequest scaler.Request
	Thumbnail    *thumbnailer.Thumbnail
}
