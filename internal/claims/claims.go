// Package claims provides single-use checkout claims keyed by order id. The
// first caller to Claim an id owns the checkout for it; later callers are told
// the id is taken until the owner calls Release.
package claims

import "time"

// DefaultTTL bounds how long an unreleased claim blocks retries when the
// backend supports expiry.
const DefaultTTL = 24 * time.Hour
