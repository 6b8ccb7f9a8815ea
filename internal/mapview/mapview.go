package mapview

import (
	"image"
	"math"

	"github.com/paulmach/orb"
)

const (
	TileSize = 256
	MinZoom  = 0.0
	MaxZoom  = 22.0
	// MinDownloadMaxZoom is the lowest zoom a download always reaches.
	MinDownloadMaxZoom = 14.0
	maxLatitude        = 85.05112878
)

// DefaultCenter is Castle Rock, CO.
var DefaultCenter = orb.Point{-104.86, 39.38}

const DefaultZoom = 13.0

var DefaultSize = image.Point{X: 1024, Y: 768}

// MapView is the viewport a download is taken from.
type MapView struct {
	StyleURL string
	Center   orb.Point
	Zoom     float64
	Size     image.Point
}

func New(styleURL string) *MapView {
	return &MapView{
		StyleURL: styleURL,
		Center:   DefaultCenter,
		Zoom:     DefaultZoom,
		Size:     DefaultSize,
	}
}

func (m *MapView) SetCenter(center orb.Point, zoom float64) {
	m.Center = orb.Point{
		max(-180, min(center.Lon(), 180)),
		max(-maxLatitude, min(center.Lat(), maxLatitude)),
	}
	m.Zoom = max(MinZoom, min(zoom, MaxZoom))
}

func (m *MapView) SetSize(width, height int) {
	if width > 0 && height > 0 {
		m.Size = image.Point{X: width, Y: height}
	}
}

// VisibleBounds returns the geographic bound of the viewport.
func (m *MapView) VisibleBounds() orb.Bound {
	cx, cy := worldCoordinates(m.Center, m.Zoom)
	halfW := float64(m.Size.X) / 2
	halfH := float64(m.Size.Y) / 2
	nw := worldToLatLng(cx-halfW, cy-halfH, m.Zoom)
	se := worldToLatLng(cx+halfW, cy+halfH, m.Zoom)
	return orb.Bound{
		Min: orb.Point{max(-180, nw.Lon()), max(-maxLatitude, se.Lat())},
		Max: orb.Point{min(180, se.Lon()), min(maxLatitude, nw.Lat())},
	}
}

// DownloadZoomRange returns the zoom levels cached for a viewport at zoom:
// from the current zoom to at least MinDownloadMaxZoom, or two levels deeper.
func DownloadZoomRange(zoom float64) (from, to float64) {
	to = min(max(MinDownloadMaxZoom, zoom+2), MaxZoom)
	return zoom, to
}

func worldCoordinates(ll orb.Point, zoom float64) (float64, float64) {
	n := math.Pow(2, zoom)
	latRad := ll.Lat() * math.Pi / 180.0
	worldX := float64(TileSize) * n * (ll.Lon() + 180) / 360
	worldY := float64(TileSize) * n * (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
	return worldX, worldY
}

func worldToLatLng(worldX, worldY, zoom float64) orb.Point {
	n := math.Pow(2, zoom)
	lng := (worldX/(float64(TileSize)*n))*360 - 180
	latRad := math.Pi * (1 - 2*worldY/(float64(TileSize)*n))
	lat := 180 / math.Pi * math.Atan(math.Sinh(latRad))
	return orb.Point{lng, lat}
}
