// Copyright 2024 The MeetKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package realtime

import (
	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

// Observer receives realtime meeting events. Observers are compared with ==
// when added or removed, so implementations should be pointers.
type Observer interface {
	OnVolumeChanged(updates []audiovideo.VolumeUpdate)
	OnSignalStrengthChanged(updates []audiovideo.SignalUpdate)
	OnAttendeesJoined(attendees []audiovideo.AttendeeInfo)
	OnAttendeesLeft(attendees []audiovideo.AttendeeInfo)
	OnAttendeesDropped(attendees []audiovideo.AttendeeInfo)
	OnAttendeesMuted(attendees []audiovideo.AttendeeInfo)
	OnAttendeesUnmuted(attendees []audiovideo.AttendeeInfo)
}

// AudioClient is the native audio client the controller drives.
type AudioClient interface {
	// SetMute mutes or unmutes the local attendee and reports success.
	SetMute(mute bool) bool
}
