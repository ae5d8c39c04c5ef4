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

import (
	protoLogger "github.com/livekit/protocol/logger"
)

var globalLog protoLogger.Logger

func getLogger() protoLogger.Logger {
	if globalLog != nil {
		return globalLog
	}
	return protoLogger.GetLogger()
}

// SetLogger overrides the default logger of new meeting sessions. To use a
// [logr](https://github.com/go-logr/logr) compatible logger, pass in
// SetLogger(logger.LogRLogger(logRLogger)).
//
// If no logger is set, logger.GetLogger is used.
func SetLogger(l protoLogger.Logger) {
	globalLog = l
}
