package known

import (
	"context"
	"time"

	"github.com/masmgr/revtrack/internal/revset"
	"github.com/masmgr/revtrack/internal/scm"
)

// Source reports the revisions of an identity that already have a review.
// Results are ascending and unique.
type Source interface {
	KnownRevisions(ctx context.Context, identity string, window time.Duration) ([]scm.Revision, error)
}

// Compile-time interface checks.
var (
	_ Source = (*ReviewLog)(nil)
	_ Source = Static(nil)
)

// Static is a fixed Source keyed by normalized identity.
type Static map[string][]scm.Revision

// KnownRevisions returns the revisions registered for identity.
func (s Static) KnownRevisions(_ context.Context, identity string, _ time.Duration) ([]scm.Revision, error) {
	return revset.Normalize(s[scm.NormalizeIdentity(identity)]), nil
}
