package projection

// Store owns the point array and cluster levels of one fetch. It is not safe
// for concurrent use; the render loop that owns it serialises access.
type Store struct {
	points      []Point
	levels      map[string]*ClusterLevel
	activeLevel string
	queryText   string
	nearest     []NearestFeature
}

// Points returns the live point array. Callers must not modify it.
func (s *Store) Points() []Point { return s.points }

// Snapshot returns a deep copy of the point array.
func (s *Store) Snapshot() []Point {
	out := make([]Point, len(s.points))
	for i, p := range s.points {
		if p.Similarity != nil {
			p.Similarity = Float(*p.Similarity)
		}
		if p.RelatedTokens != nil {
			p.RelatedTokens = append([]RelatedToken(nil), p.RelatedTokens...)
		}
		out[i] = p
	}
	return out
}

// Len returns the number of points, query included.
func (s *Store) Len() int { return len(s.points) }

// QueryPoint returns the query point when the fetch carried a query.
func (s *Store) QueryPoint() (Point, bool) {
	for _, p := range s.points {
		if p.IsQuery {
			return p, true
		}
	}
	return Point{}, false
}

// QueryText returns the analyst query, "" without one.
func (s *Store) QueryText() string { return s.queryText }

// Nearest returns the base neighbour list of the query.
func (s *Store) Nearest() []NearestFeature { return s.nearest }

// LevelKeys returns the available level keys in ascending numeric order.
func (s *Store) LevelKeys() []string {
	keys := make([]string, 0, len(s.levels))
	for k := range s.levels {
		keys = append(keys, k)
	}
	SortLevelKeys(keys)
	return keys
}

// HasLevel reports whether key is an available level.
func (s *Store) HasLevel(key string) bool {
	_, ok := s.levels[key]
	return ok
}

// Level returns the ClusterLevel for key, nil when absent.
func (s *Store) Level(key string) *ClusterLevel { return s.levels[key] }

// ActiveLevel returns the key of the level currently applied to the points.
func (s *Store) ActiveLevel() string { return s.activeLevel }

// ActiveClusterLevel returns the level currently applied to the points.
func (s *Store) ActiveClusterLevel() *ClusterLevel { return s.levels[s.activeLevel] }

// ApplyLevel overwrites ClusterID and Color of every non-query point from
// the level's tables at the point's original index. It returns false and
// leaves the points untouched when key is not an available level.
func (s *Store) ApplyLevel(key string) bool {
	lvl, ok := s.levels[key]
	if !ok {
		return false
	}
	for i := range s.points {
		p := &s.points[i]
		if p.IsQuery {
			p.ClusterID = NoCluster
			p.Color = ""
			continue
		}
		p.ClusterID = lvl.Label(p.Index)
		p.Color = lvl.Color(p.Index)
	}
	s.activeLevel = key
	return true
}

// Extent returns the data-space bounds of all points, query included.
func (s *Store) Extent() (minX, maxX, minY, maxY float64, ok bool) {
	for i, p := range s.points {
		if i == 0 {
			minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
			continue
		}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return minX, maxX, minY, maxY, len(s.points) > 0
}

// Find returns the non-query point with the given feature id.
func (s *Store) Find(id FeatureID) (Point, bool) {
	for _, p := range s.points {
		if !p.IsQuery && p.FeatureID == id {
			return p, true
		}
	}
	return Point{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Flag updates
// ─────────────────────────────────────────────────────────────────────────────

// SetVisibleInPanel marks exactly the points whose ids are in ids.
func (s *Store) SetVisibleInPanel(ids []FeatureID) {
	set := make(map[FeatureID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range s.points {
		_, ok := set[s.points[i].FeatureID]
		s.points[i].IsVisibleInPanel = ok && !s.points[i].IsQuery
	}
}

// MarkSelection selects the point with id clicked and flags the points in
// similar as its neighbours. The selected point is forced visible. It
// reports whether clicked exists.
func (s *Store) MarkSelection(clicked FeatureID, similar []FeatureID) bool {
	set := make(map[FeatureID]struct{}, len(similar))
	for _, id := range similar {
		set[id] = struct{}{}
	}
	found := false
	for i := range s.points {
		p := &s.points[i]
		if p.IsQuery {
			continue
		}
		p.IsSelected = p.FeatureID == clicked
		_, near := set[p.FeatureID]
		p.IsSelectedSimilar = near && !p.IsSelected
		if p.IsSelected {
			p.Visible = true
			found = true
		}
	}
	return found
}

// ClearSelection resets IsSelected and IsSelectedSimilar on every point.
func (s *Store) ClearSelection() {
	for i := range s.points {
		s.points[i].IsSelected = false
		s.points[i].IsSelectedSimilar = false
	}
}

// ApplyRelatedTokens replaces the token relation of every point. Points
// absent from related, or present with no tokens, become unrelated.
func (s *Store) ApplyRelatedTokens(related map[FeatureID][]RelatedToken) {
	for i := range s.points {
		p := &s.points[i]
		tokens := related[p.FeatureID]
		if p.IsQuery || len(tokens) == 0 {
			p.RelatedTokens = nil
			continue
		}
		p.RelatedTokens = append([]RelatedToken(nil), tokens...)
	}
}

// MaxRelatedCount is the largest related-token count over all points.
func (s *Store) MaxRelatedCount() int {
	max := 0
	for _, p := range s.points {
		if len(p.RelatedTokens) > max {
			max = len(p.RelatedTokens)
		}
	}
	return max
}

// MaxRelated returns the points related to every selected token, i.e. those
// whose related-token count is non-zero and equals the maximum.
func (s *Store) MaxRelated() []Point {
	max := s.MaxRelatedCount()
	if max == 0 {
		return nil
	}
	var out []Point
	for _, p := range s.points {
		if len(p.RelatedTokens) == max {
			out = append(out, p)
		}
	}
	return out
}

// IsMaxRelated reports whether p belongs to MaxRelated for a given maximum.
func IsMaxRelated(p *Point, max int) bool {
	return max > 0 && p.RelatedTokens != nil && len(p.RelatedTokens) >= max
}
