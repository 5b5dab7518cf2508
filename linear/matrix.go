// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"github.com/chewxy/math32"
)

// M4 is a column-major 4x4 matrix of float32.
type M4 [4]V4

// I makes m an identity matrix.
func (m *M4) I() { *m = M4{{1}, {0, 1}, {0, 0, 1}, {0, 0, 0, 1}} }

// Mul sets m to contain l ⋅ r.
func (m *M4) Mul(l, r *M4) {
	var p M4
	for i := range p {
		for j := range p {
			for k := range p {
				p[i][j] += l[k][j] * r[i][k]
			}
		}
	}
	*m = p
}

// MulV returns m ⋅ v.
func (m *M4) MulV(v *V4) (u V4) {
	for i := range m {
		for j := range u {
			u[j] += m[i][j] * v[i]
		}
	}
	return
}

// Transpose sets m to contain the transpose of n.
func (m *M4) Transpose(n *M4) {
	for i := range m {
		m[i][i] = n[i][i]
		for j := i + 1; j < len(m); j++ {
			m[i][j], m[j][i] = n[j][i], n[i][j]
		}
	}
}

// Invert sets m to contain the inverse of n.
func (m *M4) Invert(n *M4) {
	s0 := n[0][0]*n[1][1] - n[0][1]*n[1][0]
	s1 := n[0][0]*n[1][2] - n[0][2]*n[1][0]
	s2 := n[0][0]*n[1][3] - n[0][3]*n[1][0]
	s3 := n[0][1]*n[1][2] - n[0][2]*n[1][1]
	s4 := n[0][1]*n[1][3] - n[0][3]*n[1][1]
	s5 := n[0][2]*n[1][3] - n[0][3]*n[1][2]
	c0 := n[2][0]*n[3][1] - n[2][1]*n[3][0]
	c1 := n[2][0]*n[3][2] - n[2][2]*n[3][0]
	c2 := n[2][0]*n[3][3] - n[2][3]*n[3][0]
	c3 := n[2][1]*n[3][2] - n[2][2]*n[3][1]
	c4 := n[2][1]*n[3][3] - n[2][3]*n[3][1]
	c5 := n[2][2]*n[3][3] - n[2][3]*n[3][2]
	idet := 1 / (s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0)
	var p M4
	p[0][0] = (c5*n[1][1] - c4*n[1][2] + c3*n[1][3]) * idet
	p[0][1] = (-c5*n[0][1] + c4*n[0][2] - c3*n[0][3]) * idet
	p[0][2] = (s5*n[3][1] - s4*n[3][2] + s3*n[3][3]) * idet
	p[0][3] = (-s5*n[2][1] + s4*n[2][2] - s3*n[2][3]) * idet
	p[1][0] = (-c5*n[1][0] + c2*n[1][2] - c1*n[1][3]) * idet
	p[1][1] = (c5*n[0][0] - c2*n[0][2] + c1*n[0][3]) * idet
	p[1][2] = (-s5*n[3][0] + s2*n[3][2] - s1*n[3][3]) * idet
	p[1][3] = (s5*n[2][0] - s2*n[2][2] + s1*n[2][3]) * idet
	p[2][0] = (c4*n[1][0] - c2*n[1][1] + c0*n[1][3]) * idet
	p[2][1] = (-c4*n[0][0] + c2*n[0][1] - c0*n[0][3]) * idet
	p[2][2] = (s4*n[3][0] - s2*n[3][1] + s0*n[3][3]) * idet
	p[2][3] = (-s4*n[2][0] + s2*n[2][1] - s0*n[2][3]) * idet
	p[3][0] = (-c3*n[1][0] + c1*n[1][1] - c0*n[1][2]) * idet
	p[3][1] = (c3*n[0][0] - c1*n[0][1] + c0*n[0][2]) * idet
	p[3][2] = (-s3*n[3][0] + s1*n[3][1] - s0*n[3][2]) * idet
	p[3][3] = (s3*n[2][0] - s1*n[2][1] + s0*n[2][2]) * idet
	*m = p
}

// Translate sets m to contain a translation matrix.
func (m *M4) Translate(x, y, z float32) {
	m.I()
	m[3] = V4{x, y, z, 1}
}

// LookAt sets m to contain a view matrix.
func (m *M4) LookAt(eye, center, up *V3) {
	var f, s, u V3
	f.Sub(center, eye)
	f.Norm(&f)
	s.Cross(&f, up)
	s.Norm(&s)
	u.Cross(&s, &f)
	*m = M4{
		{s[0], u[0], -f[0], 0},
		{s[1], u[1], -f[1], 0},
		{s[2], u[2], -f[2], 0},
		{-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1},
	}
}

// Perspective sets m to contain a perspective projection
// with depth in [0, 1].
// yfov is given in radians.
func (m *M4) Perspective(yfov, aspect, znear, zfar float32) {
	ct := 1 / math32.Tan(yfov*0.5)
	*m = M4{
		{ct / aspect},
		{0, ct},
		{0, 0, zfar / (znear - zfar), -1},
		{0, 0, znear * zfar / (znear - zfar)},
	}
}
