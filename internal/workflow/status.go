// Package workflow sequences the two-step logo workflow: a logo image is
// generated from a prompt, then optionally animated into a video.
//
// A Controller owns the generation status together with the held image and
// video. Image failures move the workflow to StatusError but keep any earlier
// image, which can still be animated. Video failures demote it to
// StatusSuccessImage so the image stays usable.
package workflow

// Status represents the current generation state of a Controller.
type Status string

const (
	// StatusIdle indicates nothing has been generated yet.
	StatusIdle Status = "idle"
	// StatusGeneratingImage indicates an image request is in flight.
	StatusGeneratingImage Status = "generating_image"
	// StatusSuccessImage indicates an image is held and no video request is running.
	StatusSuccessImage Status = "success_image"
	// StatusGeneratingVideo indicates an animation request is in flight.
	StatusGeneratingVideo Status = "generating_video"
	// StatusSuccessVideo indicates both an image and its animation are held.
	StatusSuccessVideo Status = "success_video"
	// StatusError indicates the last image request failed.
	StatusError Status = "error"
)

// InFlight returns true while a remote generation is running.
func (s Status) InFlight() bool {
	return s == StatusGeneratingImage || s == StatusGeneratingVideo
}

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusIdle:            {StatusGeneratingImage},
	StatusGeneratingImage: {StatusSuccessImage, StatusError},
	StatusSuccessImage:    {StatusGeneratingImage, StatusGeneratingVideo},
	StatusGeneratingVideo: {StatusSuccessVideo, StatusSuccessImage},
	StatusSuccessVideo:    {StatusGeneratingImage, StatusGeneratingVideo},
	StatusError:           {StatusGeneratingImage, StatusGeneratingVideo},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
