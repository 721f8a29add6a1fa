// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"errors"
	"net"
	"strconv"
)

// classifyNetworkError maps a failed round trip to one of the transient
// network ChangedReasons of spec.md §7. It never returns a non-transient
// reason; callers that need finer distinctions (auth, protocol) handle
// those before falling back to this classifier.
func classifyNetworkError(err error) ChangedReason {
	if err == nil {
		return ReasonSuccess
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNSTimedOut
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonConnectionTimedOut
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "read":
			return ReasonReadTimedOut
		case "write":
			return ReasonWriteTimedOut
		case "dial":
			return ReasonConnectionTimedOut
		}
	}

	return ReasonFailureProtocolError
}

// formatHandlerID renders a handler's numeric id as the context id string
// used to namespace attachment ids (spec.md §4.3).
func formatHandlerID(id int64) string {
	return "h" + strconv.FormatInt(id, 10)
}
