// Package features turns solver trajectories into fixed-size numeric descriptors.
//
// A trajectory is the ordered polyline of 2-D positions a solver run visited
// before its improvement phase. Extract is pure: the same coordinates always
// produce the same descriptor, with no I/O and no randomness.
package features

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/stat"
)

// degenerateNorm is the vector length below which a turning vertex is skipped.
const degenerateNorm = 1e-9

// Descriptor field names, in canonical order.
const (
	AvgEdgeLength   = "avg_edge_length"
	VarEdgeLength   = "var_edge_length"
	BBoxWidth       = "bbox_width"
	BBoxHeight      = "bbox_height"
	BBoxArea        = "bbox_area"
	CentroidX       = "centroid_x"
	CentroidY       = "centroid_y"
	CentroidDistSum = "centroid_dist_sum"
	AngleVariance   = "angle_variance"
)

// DescriptorFields lists every descriptor column in canonical order.
var DescriptorFields = []string{
	AvgEdgeLength,
	VarEdgeLength,
	BBoxWidth,
	BBoxHeight,
	BBoxArea,
	CentroidX,
	CentroidY,
	CentroidDistSum,
	AngleVariance,
}

// Descriptor is the geometric summary of one trajectory.
type Descriptor struct {
	AvgEdgeLength   float64 `json:"avg_edge_length"`
	VarEdgeLength   float64 `json:"var_edge_length"`
	BBoxWidth       float64 `json:"bbox_width"`
	BBoxHeight      float64 `json:"bbox_height"`
	BBoxArea        float64 `json:"bbox_area"`
	CentroidX       float64 `json:"centroid_x"`
	CentroidY       float64 `json:"centroid_y"`
	CentroidDistSum float64 `json:"centroid_dist_sum"`
	AngleVariance   float64 `json:"angle_variance"`
}

// Values returns the descriptor in DescriptorFields order.
func (d Descriptor) Values() []float64 {
	return []float64{
		d.AvgEdgeLength,
		d.VarEdgeLength,
		d.BBoxWidth,
		d.BBoxHeight,
		d.BBoxArea,
		d.CentroidX,
		d.CentroidY,
		d.CentroidDistSum,
		d.AngleVariance,
	}
}

// Map returns the descriptor keyed by field name.
func (d Descriptor) Map() map[string]float64 {
	m := make(map[string]float64, len(DescriptorFields))
	for i, v := range d.Values() {
		m[DescriptorFields[i]] = v
	}
	return m
}

// Extract computes the descriptor of a trajectory. Trajectories with fewer
// than two points yield the zero descriptor.
func Extract(coords orb.LineString) Descriptor {
	n := len(coords)
	if n < 2 {
		return Descriptor{}
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range coords {
		xs[i] = p.X()
		ys[i] = p.Y()
	}

	edges := make([]float64, n-1)
	for i := 1; i < n; i++ {
		edges[i-1] = planar.Distance(coords[i-1], coords[i])
	}
	avgEdge, varEdge := stat.PopMeanVariance(edges, nil)

	bound := coords.Bound()
	width := bound.Max.X() - bound.Min.X()
	height := bound.Max.Y() - bound.Min.Y()

	cx := stat.Mean(xs, nil)
	cy := stat.Mean(ys, nil)
	centroid := orb.Point{cx, cy}

	var distSum float64
	for _, p := range coords {
		distSum += planar.Distance(p, centroid)
	}

	return Descriptor{
		AvgEdgeLength:   avgEdge,
		VarEdgeLength:   varEdge,
		BBoxWidth:       width,
		BBoxHeight:      height,
		BBoxArea:        width * height,
		CentroidX:       cx,
		CentroidY:       cy,
		CentroidDistSum: distSum,
		AngleVariance:   angleVariance(coords),
	}
}

// turningAngles returns the interior angle at every non-degenerate vertex.
// A vertex whose incoming or outgoing leg is shorter than degenerateNorm
// contributes nothing.
func turningAngles(coords orb.LineString) []float64 {
	if len(coords) < 3 {
		return nil
	}

	angles := make([]float64, 0, len(coords)-2)
	for i := 1; i < len(coords)-1; i++ {
		b := coords[i]
		ax, ay := coords[i-1].X()-b.X(), coords[i-1].Y()-b.Y()
		cx, cy := coords[i+1].X()-b.X(), coords[i+1].Y()-b.Y()

		normBA := math.Sqrt(ax*ax + ay*ay)
		normBC := math.Sqrt(cx*cx + cy*cy)
		if normBA < degenerateNorm || normBC < degenerateNorm {
			continue
		}

		cos := (ax*cx + ay*cy) / (normBA * normBC)
		cos = math.Max(-1, math.Min(1, cos))
		angles = append(angles, math.Acos(cos))
	}
	return angles
}

func angleVariance(coords orb.LineString) float64 {
	angles := turningAngles(coords)
	if len(angles) == 0 {
		return 0
	}
	_, v := stat.PopMeanVariance(angles, nil)
	return v
}
