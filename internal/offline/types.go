package offline

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// PackState is the lifecycle state of an offline pack as tracked by a Storage.
type PackState int

const (
	StateUnknown PackState = iota
	StateInactive
	StateActive
	StateComplete
	StateInvalid
)

func (s PackState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Region describes the tile pyramid a pack covers.
type Region struct {
	StyleURL string
	Bounds   orb.Bound
	MinZoom  float64
	MaxZoom  float64
}

func NewTilePyramidRegion(styleURL string, bounds orb.Bound, fromZoom, toZoom float64) Region {
	return Region{
		StyleURL: styleURL,
		Bounds:   bounds,
		MinZoom:  fromZoom,
		MaxZoom:  toZoom,
	}
}

// Metadata identifies a pack for display. It is stored alongside the pack
// for its whole lifetime and never validated.
type Metadata struct {
	Name string  `yaml:"name"`
	MinX float64 `yaml:"minx"`
	MinY float64 `yaml:"miny"`
	MaxX float64 `yaml:"maxx"`
	MaxY float64 `yaml:"maxy"`
}

func NewMetadata(name string, b orb.Bound) Metadata {
	return Metadata{
		Name: name,
		MinX: b.Min.Lon(),
		MinY: b.Min.Lat(),
		MaxX: b.Max.Lon(),
		MaxY: b.Max.Lat(),
	}
}

func (m Metadata) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{m.MinX, m.MinY}, Max: orb.Point{m.MaxX, m.MaxY}}
}

// DisplayName falls back to "unknown" for packs created without a name.
func (m Metadata) DisplayName() string {
	if m.Name == "" {
		return "unknown"
	}
	return m.Name
}

// Progress is a snapshot of a pack's download counters.
type Progress struct {
	State                     PackState
	CountOfResourcesCompleted uint64
	CountOfResourcesExpected  uint64
	CountOfBytesCompleted     uint64
	MaximumResourcesExpected  uint64
}

// Fraction returns completed/expected clamped to [0,1]. An unknown expected
// count (zero) reads as 0%.
func (p Progress) Fraction() float64 {
	if p.CountOfResourcesExpected == 0 {
		return 0
	}
	f := float64(p.CountOfResourcesCompleted) / float64(p.CountOfResourcesExpected)
	return max(0, min(f, 1))
}

// Done reports whether every expected resource has been fetched.
func (p Progress) Done() bool {
	return p.CountOfResourcesExpected > 0 && p.CountOfResourcesCompleted >= p.CountOfResourcesExpected
}

type Pack interface {
	ID() string
	State() PackState
	Progress() Progress
	Region() Region
	Metadata() Metadata
	Resume()
	Suspend()
}

// Storage is the offline-storage service packs are registered with.
type Storage interface {
	AddPack(ctx context.Context, region Region, meta Metadata) (Pack, error)
	RemovePack(ctx context.Context, pack Pack) error
	Packs() []Pack
	SetMaximumAllowedTiles(limit uint64)
	Subscribe() *Subscription
}

type EventKind int

const (
	EventProgressChanged EventKind = iota + 1
	EventError
	EventMaximumTilesReached
)

func (k EventKind) String() string {
	switch k {
	case EventProgressChanged:
		return "progress-changed"
	case EventError:
		return "error"
	case EventMaximumTilesReached:
		return "maximum-tiles-reached"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a notification emitted by a Storage about one of its packs.
type Event struct {
	Kind         EventKind
	Pack         Pack
	Progress     Progress
	Err          error
	MaximumCount uint64
}

// ResourceError is the error payload of EventError.
type ResourceError struct {
	Resource string
	Reason   string
	Err      error
}

func (e *ResourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Resource, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Reason)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// FailureReason extracts a human readable reason from an event error.
func FailureReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	var re *ResourceError
	if errors.As(err, &re) && re.Reason != "" {
		return re.Reason
	}
	return err.Error()
}
