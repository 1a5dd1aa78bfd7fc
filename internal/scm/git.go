package scm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/masmgr/revtrack/internal/errs"
)

// DefaultShelvedRefPrefix is where Git shelved changes are looked up.
const DefaultShelvedRefPrefix = "refs/shelved/"

// GitOptions configures the Git source.
type GitOptions struct {
	RepoPath string
	// ShelvedRefPrefix selects the refs whose unmerged commits are reported as shelved.
	ShelvedRefPrefix string
	Include          []string // Glob patterns to include
	Exclude          []string // Glob patterns to exclude
}

// GitSource reads changes from a Git repository.
//
// Git has no ordered change numbers, so a commit's revision is its depth on
// the first-parent chain from the root commit (the root is revision 1). For
// commits on HEAD's first-parent line this grows with creation order. Shelved
// commits are numbered after HEAD: the oldest unmerged commit of the first
// shelved ref (by name) is tip+1, and so on, so the two numberings never meet.
// Moving HEAD renumbers shelved commits.
type GitSource struct {
	repo *git.Repository
	opts GitOptions

	mu    sync.Mutex
	index *mainlineIndex
}

// mainlineIndex describes HEAD's first-parent chain.
type mainlineIndex struct {
	head   plumbing.Hash
	depth  map[plumbing.Hash]Revision
	tip    Revision
	byTime []*object.Commit // ascending by author time
}

// NewGitSource opens the repository at opts.RepoPath.
func NewGitSource(opts GitOptions) (*GitSource, error) {
	repo, err := git.PlainOpen(opts.RepoPath)
	if err != nil {
		return nil, errs.E(errs.Connection, "git open", err)
	}
	return NewGitSourceFromRepository(repo, opts), nil
}

// NewGitSourceFromRepository wraps an already opened repository.
func NewGitSourceFromRepository(repo *git.Repository, opts GitOptions) *GitSource {
	if opts.ShelvedRefPrefix == "" {
		opts.ShelvedRefPrefix = DefaultShelvedRefPrefix
	}
	return &GitSource{repo: repo, opts: opts}
}

// CommitsForDay returns HEAD's first-parent commits authored by identity on the given day.
func (s *GitSource) CommitsForDay(ctx context.Context, identity string, day time.Time) ([]CommitRecord, error) {
	idx, err := s.mainline(ctx)
	if err != nil {
		return nil, err
	}
	start, end := dayBounds(day)

	first, _ := slices.BinarySearchFunc(idx.byTime, start, func(c *object.Commit, t time.Time) int {
		return c.Author.When.Compare(t)
	})
	var raws []RawChange
	for _, c := range idx.byTime[first:] {
		when := c.Author.When
		if !when.Before(end) {
			break
		}
		if !matchesIdentity(c.Author, identity) {
			continue
		}
		ok, err := s.touchesFilteredPaths(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		raws = append(raws, RawChange{
			Change:      idx.depth[c.Hash].String(),
			User:        gitIdentity(c.Author),
			Time:        when.In(day.Location()),
			Description: c.Message,
		})
	}
	return normalizeAll(raws, nil), nil
}

// ShelvedCommits returns identity's commits that are reachable from a shelved
// ref but not from HEAD's first-parent chain.
func (s *GitSource) ShelvedCommits(ctx context.Context, identity string) ([]CommitRecord, error) {
	idx, err := s.mainline(ctx)
	if err != nil {
		return nil, err
	}

	refs, err := s.repo.References()
	if err != nil {
		return nil, errs.E(errs.Query, "git refs", err)
	}
	var shelvedRefs []*plumbing.Reference
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference && strings.HasPrefix(ref.Name().String(), s.opts.ShelvedRefPrefix) {
			shelvedRefs = append(shelvedRefs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, errs.E(errs.Query, "git refs", err)
	}
	slices.SortFunc(shelvedRefs, func(a, b *plumbing.Reference) int {
		return strings.Compare(a.Name().String(), b.Name().String())
	})

	seen := make(map[plumbing.Hash]struct{})
	next := idx.tip
	var raws []RawChange
	for _, ref := range shelvedRefs {
		chain, _, err := s.firstParentChain(ctx, ref.Hash(), idx.depth)
		if err != nil {
			return nil, err
		}
		// chain runs from the tip back to the fork point; number oldest first.
		for i := len(chain) - 1; i >= 0; i-- {
			c := chain[i]
			if _, dup := seen[c.Hash]; dup {
				continue
			}
			seen[c.Hash] = struct{}{}
			next++
			if !matchesIdentity(c.Author, identity) {
				continue
			}
			raws = append(raws, RawChange{
				Change:      next.String(),
				User:        gitIdentity(c.Author),
				Description: c.Message,
				Shelved:     true,
			})
		}
	}
	return normalizeAll(raws, nil), nil
}

// mainline indexes HEAD's first-parent chain. The index is reused until HEAD
// moves.
func (s *GitSource) mainline(ctx context.Context) (*mainlineIndex, error) {
	ref, err := s.repo.Head()
	if err != nil {
		return nil, errs.E(errs.Query, "git head", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil && s.index.head == ref.Hash() {
		return s.index, nil
	}

	chain, base, err := s.firstParentChain(ctx, ref.Hash(), nil)
	if err != nil {
		return nil, err
	}
	idx := &mainlineIndex{
		head:   ref.Hash(),
		depth:  make(map[plumbing.Hash]Revision, len(chain)),
		tip:    base + Revision(len(chain)),
		byTime: slices.Clone(chain),
	}
	for i, c := range chain {
		idx.depth[c.Hash] = base + Revision(len(chain)-i)
	}
	slices.SortStableFunc(idx.byTime, func(a, b *object.Commit) int {
		return a.Author.When.Compare(b.Author.When)
	})
	s.index = idx
	return idx, nil
}

// firstParentChain walks first parents from tip until the root or until a
// commit found in stop. It returns the walked commits, tip first, and the
// revision of the commit it stopped at (0 at the root).
func (s *GitSource) firstParentChain(ctx context.Context, tip plumbing.Hash, stop map[plumbing.Hash]Revision) ([]*object.Commit, Revision, error) {
	var chain []*object.Commit
	hash := tip
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, errs.E(errs.Connection, "git log", err)
		}
		if rev, ok := stop[hash]; ok {
			return chain, rev, nil
		}
		c, err := s.repo.CommitObject(hash)
		if err != nil {
			return nil, 0, errs.E(errs.Query, "git log", err)
		}
		chain = append(chain, c)
		if c.NumParents() == 0 {
			return chain, 0, nil
		}
		hash = c.ParentHashes[0]
	}
}

// touchesFilteredPaths reports whether a commit changes at least one file
// accepted by the include/exclude patterns.
func (s *GitSource) touchesFilteredPaths(c *object.Commit) (bool, error) {
	if len(s.opts.Include) == 0 && len(s.opts.Exclude) == 0 {
		return true, nil
	}

	tree, err := c.Tree()
	if err != nil {
		return false, errs.E(errs.Query, "git tree", err)
	}
	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return false, errs.E(errs.Query, "git parent", err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return false, errs.E(errs.Query, "git tree", err)
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return false, errs.E(errs.Query, "git diff", err)
	}
	for _, change := range changes {
		path := change.To.Name
		if path == "" {
			path = change.From.Name
		}
		matched, err := s.matchesFilters(path)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// matchesFilters checks if a path matches the include/exclude filters.
func (s *GitSource) matchesFilters(path string) (bool, error) {
	path = strings.ReplaceAll(path, "\\", "/")

	for _, pattern := range s.opts.Exclude {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, errs.E(errs.Config, "exclude pattern", fmt.Errorf("%q: %w", pattern, err))
		}
		if matched {
			return false, nil
		}
	}

	if len(s.opts.Include) == 0 {
		return true, nil
	}
	for _, pattern := range s.opts.Include {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, errs.E(errs.Config, "include pattern", fmt.Errorf("%q: %w", pattern, err))
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// gitIdentity is the identity a Git author is tracked under: the email
// address when present, otherwise the name.
func gitIdentity(sig object.Signature) string {
	if sig.Email != "" {
		return sig.Email
	}
	return sig.Name
}

// matchesIdentity accepts the full email, its local part, or the author name.
func matchesIdentity(sig object.Signature, identity string) bool {
	want := NormalizeIdentity(identity)
	if want == "" {
		return true
	}
	email := strings.ToLower(sig.Email)
	local, _, _ := strings.Cut(email, "@")
	return want == email || want == local || want == strings.ToLower(sig.Name)
}
