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

package activespeaker

import (
	"time"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

// Observer receives active speaker notifications. Like Policy, it is used as
// a map key and must be comparable.
type Observer interface {
	// ScoreCallbackInterval returns the period of OnActiveSpeakerScoreChanged
	// callbacks. Zero or negative disables them.
	ScoreCallbackInterval() time.Duration

	// OnActiveSpeakerDetected is called with the active speakers, loudest
	// first, whenever the set changes.
	OnActiveSpeakerDetected(attendees []audiovideo.AttendeeInfo)

	// OnActiveSpeakerScoreChanged is called every ScoreCallbackInterval with
	// a copy of all scores under the observer's policy, zeros included.
	OnActiveSpeakerScoreChanged(scores map[audiovideo.AttendeeInfo]float64)
}
