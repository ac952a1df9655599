package particles

import "gonum.org/v1/gonum/spatial/r3"

// Mesh is an immutable vertex/triangle topology shared by every object of
// one object vector.
type Mesh struct {
	vertices  []r3.Vec
	triangles [][3]int32
}

func NewMesh(vertices []r3.Vec, triangles [][3]int32) *Mesh {
	m := &Mesh{
		vertices:  make([]r3.Vec, len(vertices)),
		triangles: make([][3]int32, len(triangles)),
	}
	copy(m.vertices, vertices)
	copy(m.triangles, triangles)
	return m
}

func (m *Mesh) NumVertices() int  { return len(m.vertices) }
func (m *Mesh) NumTriangles() int { return len(m.triangles) }

func (m *Mesh) Vertex(i int) r3.Vec     { return m.vertices[i] }
func (m *Mesh) Triangle(i int) [3]int32 { return m.triangles[i] }
