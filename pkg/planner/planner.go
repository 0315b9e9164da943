// Package planner is Titan's pure path-planning service. Given a mover's
// current position and a destination, it returns an ordered list of
// primitive motion commands and a cost estimate. Planner never touches live
// mover state: every call is a pure function of the deck snapshot (tiles
// and tracks) passed into it, so it is safe to call concurrently from any
// actor without locking.
package planner

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"

	"github.com/Boticus-OG/Titan/pkg/types"
)

// ErrNoRoute is returned when source and destination anchor to disconnected
// components of the track graph.
var ErrNoRoute = errors.New("planner: no route between source and destination")

// ErrUnreachable is returned when the destination lies on a disabled tile
// or off the navigable surface entirely.
var ErrUnreachable = errors.New("planner: destination unreachable")

// TooCloseEpsilonMM is the distance below which source and destination are
// considered the same point; Plan returns an empty plan with Skipped set
// rather than an error in that case.
const TooCloseEpsilonMM = 1.0

// AssumedVelocityMMPerSec estimates command duration from command length
// when the physical driver hasn't reported an actual velocity yet.
const AssumedVelocityMMPerSec = 300.0

// CommandKind enumerates the primitive motion vocabulary.
type CommandKind string

const (
	CommandHopOn     CommandKind = "hop_on"
	CommandFollow    CommandKind = "follow"
	CommandTransition CommandKind = "transition"
	CommandHopOff    CommandKind = "hop_off"
	CommandFreeMove  CommandKind = "free_move"
	CommandRotate    CommandKind = "rotate"
)

// Command is a single primitive motion instruction with an estimated
// duration, used by the mover actor to drive the physical layer one step
// at a time.
type Command struct {
	Kind              CommandKind
	TrackID           string
	ToTrackID         string
	Distance          float64
	X, Y, C           float64
	EstimatedDuration float64 // seconds
}

// Plan is the ordered output of a planning call. Skipped is true when
// source and destination were within TooCloseEpsilonMM of each other; in
// that case Commands is empty and the caller should not attempt the hop.
type Plan struct {
	Commands      []Command
	EstimatedCost float64 // millimeters of travel
	Skipped       bool
}

// Anchor pins a point to the track graph: either a mid-track position
// (TrackID set) or a free position snapped to the nearest track endpoint by
// the planner.
type Anchor struct {
	Position types.Position
	TrackID  string  // empty if not explicitly on a track
	Distance float64 // signed distance along TrackID, if set
}

// Request is the input to a single planning call.
type Request struct {
	Source      Anchor
	Destination Anchor
	Tiles       []types.Tile
	Tracks      []types.Track
}

// Plan computes a route from req.Source to req.Destination over the given
// deck snapshot.
func Plan(req Request) (*Plan, error) {
	if req.Source.Position.DistanceTo(req.Destination.Position) <= TooCloseEpsilonMM {
		return &Plan{Skipped: true}, nil
	}
	if !onEnabledTile(req.Destination.Position, req.Tiles) {
		return nil, ErrUnreachable
	}

	g := buildGraph(req.Tracks)

	srcAnchor := resolveAnchor(req.Source, req.Tracks)
	dstAnchor := resolveAnchor(req.Destination, req.Tracks)

	if len(req.Tracks) == 0 || srcAnchor.trackID == "" || dstAnchor.trackID == "" {
		return planFreeMove(req, srcAnchor, dstAnchor)
	}

	if srcAnchor.trackID == dstAnchor.trackID {
		return planSameTrack(req, srcAnchor, dstAnchor), nil
	}

	path, err := g.shortestPath(g.clusterOf(srcAnchor.trackID, srcAnchor.atEnd), g.clusterOf(dstAnchor.trackID, dstAnchor.atEnd))
	if err != nil {
		return nil, err
	}
	return buildPlanFromPath(req, g, srcAnchor, dstAnchor, path), nil
}

// resolvedAnchor is an internal, fully-resolved anchor: a track and the
// distance along it (possibly an endpoint reached via nearest-endpoint
// snapping), plus which endpoint it snapped to for graph lookups.
type resolvedAnchor struct {
	trackID  string
	distance float64
	atEnd    bool // true if snapped to the track's End, false if Start (only meaningful when snapped)
	explicit bool // true if the caller supplied TrackID directly (mid-track)
}

func resolveAnchor(a Anchor, tracks []types.Track) resolvedAnchor {
	if a.TrackID != "" {
		return resolvedAnchor{trackID: a.TrackID, distance: a.Distance, explicit: true}
	}
	if len(tracks) == 0 {
		return resolvedAnchor{}
	}
	bestTrack := ""
	bestAtEnd := false
	bestDist := -1.0
	// Deterministic nearest-endpoint search, tie-broken by lowest track ID.
	sorted := make([]types.Track, len(tracks))
	copy(sorted, tracks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, t := range sorted {
		for _, end := range []struct {
			pos   types.Position
			atEnd bool
		}{{t.Start, false}, {t.End, true}} {
			d := a.Position.DistanceTo(end.pos)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				bestTrack = t.ID
				bestAtEnd = end.atEnd
			}
		}
	}
	dist := 0.0
	for _, t := range sorted {
		if t.ID == bestTrack {
			if bestAtEnd {
				dist = t.Length()
			}
			break
		}
	}
	return resolvedAnchor{trackID: bestTrack, distance: dist, atEnd: bestAtEnd}
}

func planFreeMove(req Request, src, dst resolvedAnchor) (*Plan, error) {
	// Neither endpoint anchors to the graph (no tracks configured): only a
	// direct free_move within one tile
	// is well-formed; anything farther has no route.
	if sameTile(req.Source.Position, req.Destination.Position, req.Tiles) {
		dist := req.Source.Position.DistanceTo(req.Destination.Position)
		cmd := Command{
			Kind: CommandFreeMove,
			X:    req.Destination.Position.X,
			Y:    req.Destination.Position.Y,
			C:    req.Destination.Position.C,
			EstimatedDuration: dist / AssumedVelocityMMPerSec,
		}
		return &Plan{Commands: []Command{cmd, rotateTo(req.Destination.Position)}, EstimatedCost: dist}, nil
	}
	return nil, ErrNoRoute
}

func planSameTrack(req Request, src, dst resolvedAnchor) *Plan {
	dist := absf(dst.distance - src.distance)
	cmds := []Command{{
		Kind:              CommandFollow,
		TrackID:           src.trackID,
		Distance:          dst.distance,
		EstimatedDuration: dist / AssumedVelocityMMPerSec,
	}}
	if !src.explicit {
		cmds = append([]Command{{
			Kind:              CommandHopOn,
			TrackID:           src.trackID,
			Distance:          src.distance,
			EstimatedDuration: 0,
		}}, cmds...)
	}
	if !dst.explicit {
		cmds = append(cmds, Command{
			Kind:              CommandHopOff,
			X:                 req.Destination.Position.X,
			Y:                 req.Destination.Position.Y,
			EstimatedDuration: 0,
		})
	}
	cmds = append(cmds, rotateTo(req.Destination.Position))
	return &Plan{Commands: cmds, EstimatedCost: dist}
}

func buildPlanFromPath(req Request, g *trackGraph, src, dst resolvedAnchor, path []string) *Plan {
	var cmds []Command
	var totalCost float64

	if !src.explicit {
		cmds = append(cmds, Command{Kind: CommandHopOn, TrackID: src.trackID, Distance: src.distance})
	}

	cur := src.trackID
	curDist := src.distance
	for i, trackID := range path {
		if trackID != cur && i > 0 {
			cmds = append(cmds, Command{Kind: CommandTransition, TrackID: cur, ToTrackID: trackID})
		}
		t := g.tracks[trackID]
		var target float64
		isLast := i == len(path)-1
		if isLast && trackID == dst.trackID {
			target = dst.distance
		} else {
			// Traverse to whichever endpoint connects onward; chosen as the
			// endpoint farther from curDist's originating side.
			if curDist <= t.Length()/2 {
				target = t.Length()
			} else {
				target = 0
			}
		}
		seg := absf(target - curDist)
		cmds = append(cmds, Command{
			Kind:              CommandFollow,
			TrackID:           trackID,
			Distance:          target,
			EstimatedDuration: seg / AssumedVelocityMMPerSec,
		})
		totalCost += seg
		cur = trackID
		curDist = target
		if i+1 < len(path) && path[i+1] == trackID {
			// duplicate defensive guard against malformed path; unreachable
			// in practice since shortestPath never repeats a node.
			continue
		}
		if i+1 < len(path) {
			curDist = 0 // reset relative distance basis for the next track
		}
	}

	if dst.explicit && cur != dst.trackID {
		// An explicit destination anchors the search at its track's Start
		// junction: cross onto that track and follow it to the distance.
		cmds = append(cmds, Command{Kind: CommandTransition, TrackID: cur, ToTrackID: dst.trackID})
		cmds = append(cmds, Command{
			Kind:              CommandFollow,
			TrackID:           dst.trackID,
			Distance:          dst.distance,
			EstimatedDuration: absf(dst.distance) / AssumedVelocityMMPerSec,
		})
		totalCost += absf(dst.distance)
	}

	if !dst.explicit {
		cmds = append(cmds, Command{Kind: CommandHopOff, X: req.Destination.Position.X, Y: req.Destination.Position.Y})
	}
	cmds = append(cmds, rotateTo(req.Destination.Position))

	return &Plan{Commands: cmds, EstimatedCost: totalCost}
}

func rotateTo(p types.Position) Command {
	return Command{Kind: CommandRotate, C: p.C}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func onEnabledTile(p types.Position, tiles []types.Tile) bool {
	for _, t := range tiles {
		if t.Bounds.Contains(p.X, p.Y) {
			return t.Enabled
		}
	}
	return false
}

func sameTile(a, b types.Position, tiles []types.Tile) bool {
	for _, t := range tiles {
		if t.Bounds.Contains(a.X, a.Y) && t.Bounds.Contains(b.X, b.Y) {
			return t.Enabled
		}
	}
	return false
}

// --- track connectivity graph -------------------------------------------------

type edge struct {
	trackID    string
	toCluster  int
	length     float64
}

type trackGraph struct {
	tracks       map[string]types.Track
	clusterOfEnd map[string]int // trackID+"|start" or trackID+"|end" -> cluster id
	adj          map[int][]edge
}

func buildGraph(tracks []types.Track) *trackGraph {
	g := &trackGraph{
		tracks:       make(map[string]types.Track, len(tracks)),
		clusterOfEnd: make(map[string]int),
		adj:          make(map[int][]edge),
	}
	if len(tracks) == 0 {
		return g
	}

	sorted := make([]types.Track, len(tracks))
	copy(sorted, tracks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	type point struct {
		trackID string
		atEnd   bool
		pos     types.Position
	}
	var points []point
	for _, t := range sorted {
		g.tracks[t.ID] = t
		points = append(points, point{t.ID, false, t.Start}, point{t.ID, true, t.End})
	}

	parent := make([]int, len(points))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			if points[i].pos.Within(points[j].pos, types.TrackConnectionEpsilonMM) {
				union(i, j)
			}
		}
	}

	clusterID := make(map[int]int)
	next := 0
	for i, p := range points {
		root := find(i)
		id, ok := clusterID[root]
		if !ok {
			id = next
			next++
			clusterID[root] = id
		}
		key := p.trackID + "|start"
		if p.atEnd {
			key = p.trackID + "|end"
		}
		g.clusterOfEnd[key] = id
	}

	for _, t := range sorted {
		startCluster := g.clusterOfEnd[t.ID+"|start"]
		endCluster := g.clusterOfEnd[t.ID+"|end"]
		g.adj[startCluster] = append(g.adj[startCluster], edge{trackID: t.ID, toCluster: endCluster, length: t.Length()})
		g.adj[endCluster] = append(g.adj[endCluster], edge{trackID: t.ID, toCluster: startCluster, length: t.Length()})
	}
	for k := range g.adj {
		sort.Slice(g.adj[k], func(i, j int) bool { return g.adj[k][i].trackID < g.adj[k][j].trackID })
	}

	return g
}

func (g *trackGraph) clusterOf(trackID string, atEnd bool) int {
	key := trackID + "|start"
	if atEnd {
		key = trackID + "|end"
	}
	return g.clusterOfEnd[key]
}

type pqItem struct {
	cluster int
	cost    float64
	path    []string
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	// Deterministic tie-break: prefer the lexicographically-lower last track id.
	li, lj := "", ""
	if len(pq[i].path) > 0 {
		li = pq[i].path[len(pq[i].path)-1]
	}
	if len(pq[j].path) > 0 {
		lj = pq[j].path[len(pq[j].path)-1]
	}
	return li < lj
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(*pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// shortestPath returns the ordered list of track IDs connecting fromCluster
// to toCluster with minimum total track length, tie-broken by lowest track
// ID at each relaxation.
func (g *trackGraph) shortestPath(fromCluster, toCluster int) ([]string, error) {
	if fromCluster == toCluster {
		return nil, fmt.Errorf("%w: source and destination resolve to the same track junction with no track between them", ErrNoRoute)
	}

	best := map[int]float64{fromCluster: 0}
	pq := &priorityQueue{{cluster: fromCluster, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if cur.cluster == toCluster {
			return cur.path, nil
		}
		if c, ok := best[cur.cluster]; ok && cur.cost > c {
			continue
		}
		for _, e := range g.adj[cur.cluster] {
			newCost := cur.cost + e.length
			if existing, ok := best[e.toCluster]; !ok || newCost < existing {
				best[e.toCluster] = newCost
				newPath := make([]string, len(cur.path)+1)
				copy(newPath, cur.path)
				newPath[len(cur.path)] = e.trackID
				heap.Push(pq, &pqItem{cluster: e.toCluster, cost: newCost, path: newPath})
			}
		}
	}
	return nil, ErrNoRoute
}
