// Package models defines the shared data types for labeled segmentation
// volumes and their physical-space geometry.
package models

// Label values used throughout the pipeline. The segmentation domain is
// fixed to two foreground structures plus background.
const (
	// LabelBackground marks voxels outside both structures.
	LabelBackground uint8 = 0

	// LabelGTVp is the primary gross tumor volume.
	LabelGTVp uint8 = 1

	// LabelGTVn is the nodal gross tumor volume.
	LabelGTVn uint8 = 2
)

// NumForegroundLabels is the number of structures a volume may contain
// besides background.
const NumForegroundLabels = 2

// ForegroundLabels lists the legal foreground values in index order:
// ForegroundLabels[0] is label 1 (GTVp), ForegroundLabels[1] is label 2 (GTVn).
var ForegroundLabels = [NumForegroundLabels]uint8{LabelGTVp, LabelGTVn}

// Geometry describes where a volume's voxel grid sits in physical space.
type Geometry struct {
	// Spacing is the physical size of one voxel along each axis, in mm.
	Spacing [3]float64

	// Origin is the physical position of voxel (0,0,0) in mm.
	Origin [3]float64

	// Direction holds the direction cosines of the grid axes. Column c is
	// the unit vector along which voxel index c increases, so the physical
	// position of index (i,j,k) is
	// origin + Direction * diag(Spacing) * (i,j,k).
	Direction [3][3]float64

	// Extent is the number of voxels along each axis.
	Extent [3]int
}

// IdentityDirection returns the axis-aligned direction matrix.
func IdentityDirection() [3][3]float64 {
	return [3][3]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// NumVoxels returns the total voxel count of the grid.
func (g Geometry) NumVoxels() int {
	return g.Extent[0] * g.Extent[1] * g.Extent[2]
}

// VoxelVolume returns the physical volume of a single voxel in mm³.
func (g Geometry) VoxelVolume() float64 {
	return g.Spacing[0] * g.Spacing[1] * g.Spacing[2]
}

// IndexToPhysical maps a (possibly fractional) voxel index to its physical
// position.
func (g Geometry) IndexToPhysical(i, j, k float64) [3]float64 {
	var p [3]float64
	for r := 0; r < 3; r++ {
		p[r] = g.Origin[r] +
			g.Direction[r][0]*g.Spacing[0]*i +
			g.Direction[r][1]*g.Spacing[1]*j +
			g.Direction[r][2]*g.Spacing[2]*k
	}
	return p
}

// SpacingEquals reports whether both grids have the same voxel spacing
// within an absolute per-axis tolerance.
func (g Geometry) SpacingEquals(other Geometry, tol float64) bool {
	for a := 0; a < 3; a++ {
		if abs(g.Spacing[a]-other.Spacing[a]) > tol {
			return false
		}
	}
	return true
}

// SameGrid reports whether two geometries describe the identical voxel
// grid: equal extents, and origin and direction matching within tol.
// Spacing is deliberately not part of this comparison; callers enforce
// spacing equality separately.
func (g Geometry) SameGrid(other Geometry, tol float64) bool {
	if g.Extent != other.Extent {
		return false
	}
	for a := 0; a < 3; a++ {
		if abs(g.Origin[a]-other.Origin[a]) > tol {
			return false
		}
		for b := 0; b < 3; b++ {
			if abs(g.Direction[a][b]-other.Direction[a][b]) > tol {
				return false
			}
		}
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// LabeledVolume is a 3-D integer-labeled segmentation mask together with
// its grid geometry. Voxel data is stored x-fastest, so the value at index
// (x,y,z) lives at Data[(z*Extent[1]+y)*Extent[0]+x].
type LabeledVolume struct {
	Data     []uint8
	Geometry Geometry
}

// NewLabeledVolume allocates a background-filled volume on the given grid.
func NewLabeledVolume(geom Geometry) *LabeledVolume {
	return &LabeledVolume{
		Data:     make([]uint8, geom.NumVoxels()),
		Geometry: geom,
	}
}

// At returns the label at voxel index (x,y,z). The caller is responsible
// for staying within the extent.
func (v *LabeledVolume) At(x, y, z int) uint8 {
	return v.Data[(z*v.Geometry.Extent[1]+y)*v.Geometry.Extent[0]+x]
}

// Set writes the label at voxel index (x,y,z).
func (v *LabeledVolume) Set(x, y, z int, label uint8) {
	v.Data[(z*v.Geometry.Extent[1]+y)*v.Geometry.Extent[0]+x] = label
}

// Clone returns a deep copy of the volume.
func (v *LabeledVolume) Clone() *LabeledVolume {
	data := make([]uint8, len(v.Data))
	copy(data, v.Data)
	return &LabeledVolume{Data: data, Geometry: v.Geometry}
}
