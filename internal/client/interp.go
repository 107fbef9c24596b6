package client

import (
	"sort"

	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// RemotePose is an interpolated render pose for a non-local player.
type RemotePose struct {
	Head     sphere.Vec3
	Heading  sphere.Vec3
	Alive    bool
	Boosting bool
}

type remoteSample struct {
	head     sphere.Vec3
	heading  sphere.Vec3
	serverMs int64
}

type remoteTrack struct {
	prev     remoteSample
	next     remoteSample
	havePrev bool

	alive    bool
	boosting bool
}

// RemoteInterpolator is presentation-only playback of server truth for
// remote players: it keeps the two newest snapshot poses per id and
// slerps between them at the delayed render time. No sequencing, no
// prediction.
type RemoteInterpolator struct {
	tracks map[uint16]*remoteTrack
}

func NewRemoteInterpolator() *RemoteInterpolator {
	return &RemoteInterpolator{tracks: map[uint16]*remoteTrack{}}
}

// Push records one snapshot pose. Samples that do not advance server
// time are dropped; interpolation needs strictly increasing timestamps.
func (ri *RemoteInterpolator) Push(id uint16, head, heading sphere.Vec3, alive, boosting bool, serverMs int64) {
	tr := ri.tracks[id]
	if tr == nil {
		tr = &remoteTrack{}
		ri.tracks[id] = tr
		tr.next = remoteSample{head: head, heading: heading, serverMs: serverMs}
		tr.alive = alive
		tr.boosting = boosting
		return
	}
	if serverMs <= tr.next.serverMs {
		return
	}
	tr.prev = tr.next
	tr.havePrev = true
	tr.next = remoteSample{head: head, heading: heading, serverMs: serverMs}
	tr.alive = alive
	tr.boosting = boosting
}

// Sample interpolates the pose at renderMs. Outside the buffered span
// it clamps to the nearest endpoint rather than extrapolating.
func (ri *RemoteInterpolator) Sample(id uint16, renderMs int64) (RemotePose, bool) {
	tr := ri.tracks[id]
	if tr == nil {
		return RemotePose{}, false
	}
	pose := RemotePose{Alive: tr.alive, Boosting: tr.boosting}
	if !tr.havePrev || renderMs >= tr.next.serverMs {
		pose.Head = tr.next.head
		pose.Heading = tr.next.heading
		return pose, true
	}
	if renderMs <= tr.prev.serverMs {
		pose.Head = tr.prev.head
		pose.Heading = tr.prev.heading
		return pose, true
	}
	span := float64(tr.next.serverMs - tr.prev.serverMs)
	t := float64(renderMs-tr.prev.serverMs) / span
	pose.Head = sphere.Slerp(tr.prev.head, tr.next.head, t)
	pose.Heading = sphere.Slerp(tr.prev.heading, tr.next.heading, t)
	if tangent, ok := sphere.Tangent(pose.Head, pose.Heading); ok {
		pose.Heading = tangent
	}
	return pose, true
}

func (ri *RemoteInterpolator) Remove(id uint16) { delete(ri.tracks, id) }

// Sweep drops tracks whose newest sample is older than maxAgeMs, which
// is how players that left the view scope eventually disappear.
func (ri *RemoteInterpolator) Sweep(serverNowMs, maxAgeMs int64) int {
	removed := 0
	for id, tr := range ri.tracks {
		if serverNowMs-tr.next.serverMs > maxAgeMs {
			delete(ri.tracks, id)
			removed++
		}
	}
	return removed
}

func (ri *RemoteInterpolator) Len() int { return len(ri.tracks) }

func (ri *RemoteInterpolator) IDs() []uint16 {
	ids := make([]uint16, 0, len(ri.tracks))
	for id := range ri.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
