// Package domain holds the global clock and the local-subdomain geometry.
//
// Positions inside a subdomain live in a frame centered on the subdomain:
// an owned coordinate x satisfies -LocalSize/2 <= x < LocalSize/2 in every
// dimension. The driver owns the single State instance; every other
// component receives it as an explicit handle.
package domain

import "gonum.org/v1/gonum/spatial/r3"

// DomainInfo describes the rectangular subdomain assigned to this rank
// within the global simulation box.
type DomainInfo struct {
	GlobalSize  r3.Vec // full simulation box
	GlobalStart r3.Vec // lower corner of this subdomain in global coordinates
	LocalSize   r3.Vec // extent of this subdomain
}

// NewDomainInfo splits globalSize over a Cartesian rank grid and returns
// the geometry of the subdomain at the given rank coordinates.
func NewDomainInfo(globalSize r3.Vec, dims, coords [3]int) DomainInfo {
	local := r3.Vec{
		X: globalSize.X / float64(dims[0]),
		Y: globalSize.Y / float64(dims[1]),
		Z: globalSize.Z / float64(dims[2]),
	}
	return DomainInfo{
		GlobalSize: globalSize,
		GlobalStart: r3.Vec{
			X: local.X * float64(coords[0]),
			Y: local.Y * float64(coords[1]),
			Z: local.Z * float64(coords[2]),
		},
		LocalSize: local,
	}
}

// Local2Global converts a subdomain-centered coordinate to the global frame.
func (d DomainInfo) Local2Global(x r3.Vec) r3.Vec {
	return r3.Vec{
		X: x.X + d.GlobalStart.X + 0.5*d.LocalSize.X,
		Y: x.Y + d.GlobalStart.Y + 0.5*d.LocalSize.Y,
		Z: x.Z + d.GlobalStart.Z + 0.5*d.LocalSize.Z,
	}
}

// Global2Local converts a global coordinate to the subdomain-centered frame.
func (d DomainInfo) Global2Local(x r3.Vec) r3.Vec {
	return r3.Vec{
		X: x.X - d.GlobalStart.X - 0.5*d.LocalSize.X,
		Y: x.Y - d.GlobalStart.Y - 0.5*d.LocalSize.Y,
		Z: x.Z - d.GlobalStart.Z - 0.5*d.LocalSize.Z,
	}
}

// InSubDomain reports whether a subdomain-centered coordinate is owned by
// this rank.
func (d DomainInfo) InSubDomain(x r3.Vec) bool {
	return x.X >= -0.5*d.LocalSize.X && x.X < 0.5*d.LocalSize.X &&
		x.Y >= -0.5*d.LocalSize.Y && x.Y < 0.5*d.LocalSize.Y &&
		x.Z >= -0.5*d.LocalSize.Z && x.Z < 0.5*d.LocalSize.Z
}
