package meetsdk

import (
	"time"

	"github.com/meetkit/meeting-sdk-go/pkg/activespeaker"
	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

type MeetingCallback struct {
	// roster
	OnAttendeesJoined  func(attendees []audiovideo.AttendeeInfo)
	OnAttendeesLeft    func(attendees []audiovideo.AttendeeInfo)
	OnAttendeesDropped func(attendees []audiovideo.AttendeeInfo)

	// audio state
	OnAttendeesMuted        func(attendees []audiovideo.AttendeeInfo)
	OnAttendeesUnmuted      func(attendees []audiovideo.AttendeeInfo)
	OnVolumeChanged         func(updates []audiovideo.VolumeUpdate)
	OnSignalStrengthChanged func(updates []audiovideo.SignalUpdate)

	// loudest first
	OnActiveSpeakersChanged func(attendees []audiovideo.AttendeeInfo)
}

func NewMeetingCallback() *MeetingCallback {
	return &MeetingCallback{
		OnAttendeesJoined:       func(attendees []audiovideo.AttendeeInfo) {},
		OnAttendeesLeft:         func(attendees []audiovideo.AttendeeInfo) {},
		OnAttendeesDropped:      func(attendees []audiovideo.AttendeeInfo) {},
		OnAttendeesMuted:        func(attendees []audiovideo.AttendeeInfo) {},
		OnAttendeesUnmuted:      func(attendees []audiovideo.AttendeeInfo) {},
		OnVolumeChanged:         func(updates []audiovideo.VolumeUpdate) {},
		OnSignalStrengthChanged: func(updates []audiovideo.SignalUpdate) {},
		OnActiveSpeakersChanged: func(attendees []audiovideo.AttendeeInfo) {},
	}
}

// Merge copies every handler set in other.
func (cb *MeetingCallback) Merge(other *MeetingCallback) {
	if other == nil {
		return
	}

	if other.OnAttendeesJoined != nil {
		cb.OnAttendeesJoined = other.OnAttendeesJoined
	}
	if other.OnAttendeesLeft != nil {
		cb.OnAttendeesLeft = other.OnAttendeesLeft
	}
	if other.OnAttendeesDropped != nil {
		cb.OnAttendeesDropped = other.OnAttendeesDropped
	}
	if other.OnAttendeesMuted != nil {
		cb.OnAttendeesMuted = other.OnAttendeesMuted
	}
	if other.OnAttendeesUnmuted != nil {
		cb.OnAttendeesUnmuted = other.OnAttendeesUnmuted
	}
	if other.OnVolumeChanged != nil {
		cb.OnVolumeChanged = other.OnVolumeChanged
	}
	if other.OnSignalStrengthChanged != nil {
		cb.OnSignalStrengthChanged = other.OnSignalStrengthChanged
	}
	if other.OnActiveSpeakersChanged != nil {
		cb.OnActiveSpeakersChanged = other.OnActiveSpeakersChanged
	}
}

// ActiveSpeakerCallback adapts plain functions to activespeaker.Observer.
// Register it by pointer. Nil handlers are skipped.
type ActiveSpeakerCallback struct {
	// period of score callbacks, zero disables them
	Interval time.Duration

	OnDetected     func(attendees []audiovideo.AttendeeInfo)
	OnScoreChanged func(scores map[audiovideo.AttendeeInfo]float64)
}

var _ activespeaker.Observer = (*ActiveSpeakerCallback)(nil)

func (cb *ActiveSpeakerCallback) ScoreCallbackInterval() time.Duration {
	return cb.Interval
}

func (cb *ActiveSpeakerCallback) OnActiveSpeakerDetected(attendees []audiovideo.AttendeeInfo) {
	if cb.OnDetected != nil {
		cb.OnDetected(attendees)
	}
}

func (cb *ActiveSpeakerCallback) OnActiveSpeakerScoreChanged(scores map[audiovideo.AttendeeInfo]float64) {
	if cb.OnScoreChanged != nil {
		cb.OnScoreChanged(scores)
	}
}
