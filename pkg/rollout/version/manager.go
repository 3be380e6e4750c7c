package version

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/callisto/pkg/policy"
)

// PolicyVersion is one immutable revision in a policy lineage.
type PolicyVersion struct {
	ID        string
	Policy    *policy.Policy
	CreatedAt time.Time
	CreatedBy string
	Reason    string
	// ParentID is empty only for the root of the lineage.
	ParentID string
	Tags     []string
}

func (v *PolicyVersion) clone() *PolicyVersion {
	out := *v
	out.Policy = v.Policy.Clone()
	out.Tags = append([]string(nil), v.Tags...)
	return &out
}

// DefaultMaxVersions bounds retention when no limit is configured.
const DefaultMaxVersions = 50

// Manager tracks policy revisions in memory. All methods are safe for
// concurrent use.
type Manager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	versions    map[string]*PolicyVersion
	order       []string // creation order, oldest first
	head        string
	maxVersions int
}

// NewManager returns an empty manager retaining at most maxVersions
// revisions. Zero or negative means DefaultMaxVersions.
func NewManager(maxVersions int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if maxVersions <= 0 {
		maxVersions = DefaultMaxVersions
	}
	return &Manager{
		logger:      logger.With("component", "version"),
		versions:    make(map[string]*PolicyVersion),
		maxVersions: maxVersions,
	}
}

// CreateVersion snapshots p as a new revision whose parent is the current
// head. The first version created becomes the lineage root.
func (m *Manager) CreateVersion(p *policy.Policy, createdBy, reason string) (*PolicyVersion, error) {
	if p == nil {
		return nil, ErrNilPolicy
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v := &PolicyVersion{
		ID:        uuid.New().String(),
		Policy:    p.Clone(),
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
		Reason:    reason,
		ParentID:  m.head,
	}
	m.versions[v.ID] = v
	m.order = append(m.order, v.ID)
	m.head = v.ID
	m.evictLocked()

	m.logger.Info("version created",
		"version_id", v.ID,
		"policy_id", p.ID,
		"parent_id", v.ParentID,
		"created_by", createdBy)
	return v.clone(), nil
}

// evictLocked drops the oldest non-root version while over the retention
// limit. The root stays so History can always terminate, and the head is
// never evicted even when the limit would otherwise demand it, so a limit
// of 1 still retains root plus head.
func (m *Manager) evictLocked() {
	for len(m.order) > m.maxVersions {
		evicted := false
		for i, id := range m.order {
			if i == 0 && m.versions[id].ParentID == "" {
				continue
			}
			if id == m.head {
				continue
			}
			m.logger.Debug("version evicted", "version_id", id)
			delete(m.versions, id)
			m.order = append(m.order[:i], m.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// GetVersion returns a copy of the revision with the given ID.
func (m *Manager) GetVersion(id string) (*PolicyVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return v.clone(), nil
}

// Head returns the most recently created revision, or ErrNotFound when no
// version exists yet.
func (m *Manager) Head() (*PolicyVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.head == "" {
		return nil, ErrNotFound
	}
	return m.versions[m.head].clone(), nil
}

// TagVersion attaches a tag to a revision. Tagging twice with the same tag
// is a no-op.
func (m *Manager) TagVersion(id, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	for _, t := range v.Tags {
		if t == tag {
			return nil
		}
	}
	v.Tags = append(v.Tags, tag)
	sort.Strings(v.Tags)
	return nil
}

// FindByTag returns all revisions carrying the tag, oldest first.
func (m *Manager) FindByTag(tag string) []*PolicyVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PolicyVersion
	for _, id := range m.order {
		v := m.versions[id]
		for _, t := range v.Tags {
			if t == tag {
				out = append(out, v.clone())
				break
			}
		}
	}
	return out
}

// ListVersions returns all retained revisions, oldest first.
func (m *Manager) ListVersions() []*PolicyVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*PolicyVersion, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.versions[id].clone())
	}
	return out
}

// Count reports how many revisions are retained.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Diff compares two revisions field by field. Comparing a version with
// itself yields an empty diff.
func (m *Manager) Diff(fromID, toID string) (Diff, error) {
	m.mu.RLock()
	from, okFrom := m.versions[fromID]
	to, okTo := m.versions[toID]
	m.mu.RUnlock()

	if !okFrom {
		return Diff{}, &NotFoundError{ID: fromID}
	}
	if !okTo {
		return Diff{}, &NotFoundError{ID: toID}
	}
	return Diff{
		FromID:  fromID,
		ToID:    toID,
		Changes: diffPolicies(from.Policy, to.Policy),
	}, nil
}

// History walks the parent chain from id back to the lineage root, newest
// first. A parent link pointing at an evicted revision yields
// ErrBrokenLineage with the versions resolved so far.
func (m *Manager) History(id string) ([]*PolicyVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*PolicyVersion
	cur := id
	for cur != "" {
		v, ok := m.versions[cur]
		if !ok {
			if len(out) == 0 {
				return nil, &NotFoundError{ID: cur}
			}
			return out, ErrBrokenLineage
		}
		out = append(out, v.clone())
		cur = v.ParentID
	}
	return out, nil
}
