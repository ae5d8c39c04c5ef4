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

package audiolevel

import (
	"context"
	"errors"
	"io"

	"github.com/livekit/protocol/logger"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

// RTPReader is the read side of a remote audio track.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

var _ RTPReader = (*webrtc.TrackRemote)(nil)

// AudioLevelExtensionID returns the negotiated ID of the ssrc-audio-level
// header extension.
func AudioLevelExtensionID(params []webrtc.RTPHeaderExtensionParameter) (uint8, bool) {
	for _, p := range params {
		if p.URI == sdp.AudioLevelURI {
			return uint8(p.ID), true
		}
	}
	return 0, false
}

// ReadTrack feeds the audio level of every packet read from reader into
// monitor until ctx is done or the reader fails. io.EOF ends the track
// without an error. ReadRTP is blocking, so ctx is only checked between
// packets; closing the track unblocks it.
func ReadTrack(ctx context.Context, reader RTPReader, extID uint8, attendee audiovideo.AttendeeInfo, monitor *Monitor) error {
	l := logger.GetLogger().WithComponent("audiolevel").WithValues("attendee", attendee)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pkt, _, err := reader.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		payload := pkt.GetExtension(extID)
		if payload == nil {
			continue
		}
		var ext rtp.AudioLevelExtension
		if err = ext.Unmarshal(payload); err != nil {
			l.Debugw("invalid audio level extension", "error", err)
			continue
		}
		monitor.Observe(attendee, ext.Level, ext.Voice)
	}
}

type Track struct {
	Reader   RTPReader
	ExtID    uint8
	Attendee audiovideo.AttendeeInfo
}

// ReadTracks runs ReadTrack for every track into the same monitor and
// returns the first error. The remaining tracks see a canceled context
// after their next packet.
func ReadTracks(ctx context.Context, tracks []Track, monitor *Monitor) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tracks {
		g.Go(func() error {
			return ReadTrack(ctx, t.Reader, t.ExtID, t.Attendee, monitor)
		})
	}
	return g.Wait()
}
