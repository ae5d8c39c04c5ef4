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

package meetsdk

import "errors"

var (
	ErrSessionClosed     = errors.New("meeting session is closed")
	ErrMissingAttendeeID = errors.New("credentials must include an attendee ID")
	ErrMonitorRunning    = errors.New("audio level monitor is already running")
	ErrInvalidInterval   = errors.New("interval must be positive")
)
