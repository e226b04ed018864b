// Package state provides the durable event, insight and session store backed
// by an embedded SQLite database.
package state

import "github.com/user/insightflow/internal/types"

// Compile-time interface compliance checks.
var _ types.Store = (*Store)(nil)
