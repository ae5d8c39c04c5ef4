package meetsdk

import (
	"github.com/livekit/protocol/livekit"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

// ToProtoSpeakerUpdate converts an active speaker list into the signalling
// message used to forward it. Levels come from scores and default to 0.
func ToProtoSpeakerUpdate(active []audiovideo.AttendeeInfo, scores map[audiovideo.AttendeeInfo]float64) *livekit.ActiveSpeakerUpdate {
	update := &livekit.ActiveSpeakerUpdate{
		Speakers: make([]*livekit.SpeakerInfo, 0, len(active)),
	}
	for _, a := range active {
		update.Speakers = append(update.Speakers, &livekit.SpeakerInfo{
			Sid:    a.AttendeeID,
			Level:  float32(scores[a]),
			Active: true,
		})
	}
	return update
}

// FromProtoSpeakerUpdate returns the active attendees of an update, in
// message order. External user IDs are looked up in roster.
func FromProtoSpeakerUpdate(update *livekit.ActiveSpeakerUpdate, roster []audiovideo.AttendeeInfo) []audiovideo.AttendeeInfo {
	byID := make(map[string]audiovideo.AttendeeInfo, len(roster))
	for _, a := range roster {
		byID[a.AttendeeID] = a
	}

	var active []audiovideo.AttendeeInfo
	for _, info := range update.GetSpeakers() {
		if !info.GetActive() {
			continue
		}
		a, ok := byID[info.GetSid()]
		if !ok {
			a = audiovideo.AttendeeInfo{AttendeeID: info.GetSid()}
		}
		active = append(active, a)
	}
	return active
}
