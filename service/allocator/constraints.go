// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

// VideoConstraints caps the resolution and frame rate a source may be
// forwarded at. A zero MaxHeightPx is the disabled pole: no layer of the
// source may ever be forwarded.
type VideoConstraints struct {
	MaxHeightPx  int     `json:"maxHeight"`
	MaxFrameRate float64 `json:"maxFramerate"`
}

// Disabled reports whether these constraints forbid forwarding entirely.
func (c VideoConstraints) Disabled() bool {
	return c.MaxHeightPx == 0
}

// DisabledVideoConstraints is the canonical disabled constraint value.
var DisabledVideoConstraints = VideoConstraints{}
