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

package audiovideo

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// AttendeeInfo identifies an attendee of a meeting. It is comparable and is
// used as a map key throughout the SDK.
type AttendeeInfo struct {
	AttendeeID     string
	ExternalUserID string
}

func (a AttendeeInfo) String() string {
	return fmt.Sprintf("%s(%s)", a.AttendeeID, a.ExternalUserID)
}

func (a AttendeeInfo) MarshalLogObject(e zapcore.ObjectEncoder) error {
	e.AddString("attendeeID", a.AttendeeID)
	e.AddString("externalUserID", a.ExternalUserID)
	return nil
}

// VolumeLevel is the coarse volume of an attendee as reported by the audio
// client. The numeric value is the rank used for normalization.
type VolumeLevel int

const (
	VolumeLevelMuted       VolumeLevel = -1
	VolumeLevelNotSpeaking VolumeLevel = 0
	VolumeLevelLow         VolumeLevel = 1
	VolumeLevelMedium      VolumeLevel = 2
	VolumeLevelHigh        VolumeLevel = 3
)

func VolumeLevelFrom(value int) (VolumeLevel, bool) {
	v := VolumeLevel(value)
	switch v {
	case VolumeLevelMuted, VolumeLevelNotSpeaking, VolumeLevelLow, VolumeLevelMedium, VolumeLevelHigh:
		return v, true
	}
	return VolumeLevelNotSpeaking, false
}

func (v VolumeLevel) String() string {
	switch v {
	case VolumeLevelMuted:
		return "Muted"
	case VolumeLevelNotSpeaking:
		return "NotSpeaking"
	case VolumeLevelLow:
		return "Low"
	case VolumeLevelMedium:
		return "Medium"
	case VolumeLevelHigh:
		return "High"
	default:
		return fmt.Sprintf("VolumeLevel(%d)", int(v))
	}
}

type VolumeUpdate struct {
	AttendeeInfo AttendeeInfo
	VolumeLevel  VolumeLevel
}

func (u VolumeUpdate) MarshalLogObject(e zapcore.ObjectEncoder) error {
	if err := e.AddObject("attendee", u.AttendeeInfo); err != nil {
		return err
	}
	e.AddString("volume", u.VolumeLevel.String())
	return nil
}

// SignalStrength is the network signal strength of an attendee.
type SignalStrength int

const (
	SignalStrengthNone SignalStrength = 0
	SignalStrengthLow  SignalStrength = 1
	SignalStrengthHigh SignalStrength = 2
)

func SignalStrengthFrom(value int) (SignalStrength, bool) {
	s := SignalStrength(value)
	switch s {
	case SignalStrengthNone, SignalStrengthLow, SignalStrengthHigh:
		return s, true
	}
	return SignalStrengthNone, false
}

func (s SignalStrength) String() string {
	switch s {
	case SignalStrengthNone:
		return "None"
	case SignalStrengthLow:
		return "Low"
	case SignalStrengthHigh:
		return "High"
	default:
		return fmt.Sprintf("SignalStrength(%d)", int(s))
	}
}

type SignalUpdate struct {
	AttendeeInfo   AttendeeInfo
	SignalStrength SignalStrength
}

// AttendeeStatus is the presence state carried by presence updates.
type AttendeeStatus int

const (
	AttendeeStatusJoined  AttendeeStatus = 1
	AttendeeStatusLeft    AttendeeStatus = 2
	AttendeeStatusDropped AttendeeStatus = 3
)

func AttendeeStatusFrom(value int) (AttendeeStatus, bool) {
	s := AttendeeStatus(value)
	switch s {
	case AttendeeStatusJoined, AttendeeStatusLeft, AttendeeStatusDropped:
		return s, true
	}
	return 0, false
}

func (s AttendeeStatus) String() string {
	switch s {
	case AttendeeStatusJoined:
		return "Joined"
	case AttendeeStatusLeft:
		return "Left"
	case AttendeeStatusDropped:
		return "Dropped"
	default:
		return fmt.Sprintf("AttendeeStatus(%d)", int(s))
	}
}

// AttendeeUpdate is a raw update as delivered by the native audio client.
// Data holds a VolumeLevel, SignalStrength or AttendeeStatus value depending
// on the callback it arrives on.
type AttendeeUpdate struct {
	AttendeeID     string
	ExternalUserID string
	Data           int
}

// AttendeeInfoList marshals a slice of attendees for structured logging.
type AttendeeInfoList []AttendeeInfo

func (l AttendeeInfoList) MarshalLogArray(e zapcore.ArrayEncoder) error {
	for _, a := range l {
		if err := e.AppendObject(a); err != nil {
			return err
		}
	}
	return nil
}
