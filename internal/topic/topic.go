/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package topic implements MQTT topic-name/topic-filter parsing and the
// filter-to-name match relation, including the wildcard and $-namespace
// rules.
package topic

import (
	"strings"

	"github.com/yunqi/beaconmq/internal/xerror"
)

const (
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
	levelSeparator      = "/"
	reservedPrefix      = "$"
)

// Name is a parsed, non-empty, wildcard-free topic name, as carried by a
// PUBLISH packet.
type Name struct {
	raw      string
	segments []string
}

// ParseName validates and parses a topic name. It rejects the empty
// string and any segment containing a wildcard character.
func ParseName(s string) (Name, error) {
	if s == "" {
		return Name{}, xerror.ErrBadTopicName
	}
	segments := strings.Split(s, levelSeparator)
	for _, seg := range segments {
		if strings.Contains(seg, singleLevelWildcard) || strings.Contains(seg, multiLevelWildcard) {
			return Name{}, xerror.ErrBadTopicName
		}
	}
	return Name{raw: s, segments: segments}, nil
}

func (n Name) String() string { return n.raw }

// Filter is a parsed topic filter, as carried by SUBSCRIBE/UNSUBSCRIBE.
type Filter struct {
	raw      string
	segments []string
}

// ParseFilter validates and parses a topic filter. '#' is legal only as
// the last segment; any other placement of '#', or a segment that mixes
// a wildcard with other characters, is a parse error.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return Filter{}, xerror.ErrBadTopicFilter
	}
	segments := strings.Split(s, levelSeparator)
	for i, seg := range segments {
		switch seg {
		case singleLevelWildcard, multiLevelWildcard:
			if seg == multiLevelWildcard && i != len(segments)-1 {
				return Filter{}, xerror.ErrBadTopicFilter
			}
		default:
			if strings.Contains(seg, singleLevelWildcard) || strings.Contains(seg, multiLevelWildcard) {
				return Filter{}, xerror.ErrBadTopicFilter
			}
		}
	}
	return Filter{raw: s, segments: segments}, nil
}

func (f Filter) String() string { return f.raw }

// Match reports whether name satisfies filter per the MQTT match
// relation: segment-by-segment comparison, '+' matching exactly one
// segment, '#' (terminal only) matching any suffix including the empty
// one, and the $-guard that stops a leading wildcard from ever matching a
// name whose first segment begins with '$'.
func Match(filter Filter, name Name) bool {
	fs, ns := filter.segments, name.segments

	if len(fs) > 0 && (fs[0] == singleLevelWildcard || fs[0] == multiLevelWildcard) {
		if len(ns) > 0 && strings.HasPrefix(ns[0], reservedPrefix) {
			return false
		}
	}

	i := 0
	for ; i < len(fs); i++ {
		seg := fs[i]
		if seg == multiLevelWildcard {
			// '#' is only legal as the final filter segment and matches
			// any suffix of length >= 0, including none.
			return true
		}
		if i >= len(ns) {
			return false
		}
		if seg == singleLevelWildcard {
			continue
		}
		if seg != ns[i] {
			return false
		}
	}
	return i == len(ns)
}
