// Copyright 2021-2022 The streammux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataplane

import (
	"fmt"
	"regexp"
	"strings"
)

var subjectTokenFilter = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SubjectForChannel build the subject a channel's values are published on. Characters
// outside [A-Za-z0-9_-] in the label become "_".
func SubjectForChannel(prefix, channelLabel string) (string, error) {
	if prefix == "" || strings.ContainsAny(prefix, " *>") {
		return "", fmt.Errorf("invalid subject prefix '%s'", prefix)
	}
	if channelLabel == "" {
		return "", fmt.Errorf("channel label is empty")
	}
	return fmt.Sprintf("%s.%s", prefix, subjectTokenFilter.ReplaceAllString(channelLabel, "_")), nil
}

