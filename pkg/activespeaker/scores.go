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
	"golang.org/x/exp/maps"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

// scoreMap is a per-attendee score table. Reads never insert; getOrInit is
// the only way an unseen attendee gets its zero entry.
type scoreMap struct {
	scores map[audiovideo.AttendeeInfo]float64
}

func newScoreMap() *scoreMap {
	return &scoreMap{
		scores: make(map[audiovideo.AttendeeInfo]float64),
	}
}

func (m *scoreMap) get(a audiovideo.AttendeeInfo) (float64, bool) {
	s, ok := m.scores[a]
	return s, ok
}

func (m *scoreMap) getOrInit(a audiovideo.AttendeeInfo) float64 {
	s, ok := m.scores[a]
	if !ok {
		m.scores[a] = 0
	}
	return s
}

func (m *scoreMap) set(a audiovideo.AttendeeInfo, score float64) {
	m.scores[a] = score
}

func (m *scoreMap) delete(a audiovideo.AttendeeInfo) {
	delete(m.scores, a)
}

// update rewrites every entry except skip in place.
func (m *scoreMap) update(skip audiovideo.AttendeeInfo, fn func(float64) float64) {
	for a, s := range m.scores {
		if a == skip {
			continue
		}
		m.scores[a] = fn(s)
	}
}

func (m *scoreMap) snapshot() map[audiovideo.AttendeeInfo]float64 {
	return maps.Clone(m.scores)
}
