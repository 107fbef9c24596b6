package sphere

import "math"

// Vec3 is a point or direction in world space. Player heads live on the
// unit sphere; headings are unit tangents at the head.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns the unit vector. The zero vector normalizes to zero
// so callers must guard degenerate input themselves.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Angle returns the angle between two vectors in radians, clamped so
// float noise near parallel vectors cannot push acos out of domain.
func Angle(a, b Vec3) float64 {
	d := a.Normalize().Dot(b.Normalize())
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d)
}

// AngleDeg is Angle in degrees.
func AngleDeg(a, b Vec3) float64 {
	return Angle(a, b) * 180 / math.Pi
}

// RotateAbout rotates v around the unit axis by angle radians using the
// Rodrigues formula.
func RotateAbout(v, axis Vec3, angle float64) Vec3 {
	s, c := math.Sin(angle), math.Cos(angle)
	return v.Scale(c).
		Add(axis.Cross(v).Scale(s)).
		Add(axis.Scale(axis.Dot(v) * (1 - c)))
}

// Slerp interpolates between two unit vectors along the great circle.
// t outside [0,1] is clamped.
func Slerp(a, b Vec3, t float64) Vec3 {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	ang := Angle(a, b)
	if ang < 1e-9 {
		return a
	}
	if math.Pi-ang < 1e-9 {
		// Antipodal endpoints have no unique arc; fall back to the
		// shorter of the two via an arbitrary orthogonal pivot.
		return RotateAbout(a, anyOrthonormal(a), ang*t)
	}
	s := math.Sin(ang)
	return a.Scale(math.Sin((1-t)*ang) / s).Add(b.Scale(math.Sin(t*ang) / s)).Normalize()
}

// Tangent projects dir onto the tangent plane at the unit point p and
// normalizes. Returns false when dir is parallel to p.
func Tangent(p, dir Vec3) (Vec3, bool) {
	t := dir.Sub(p.Scale(dir.Dot(p)))
	if t.Len() < 1e-9 {
		return Vec3{}, false
	}
	return t.Normalize(), true
}

func anyOrthonormal(v Vec3) Vec3 {
	ref := Vec3{0, 0, 1}
	if math.Abs(v.Z) > 0.9 {
		ref = Vec3{1, 0, 0}
	}
	t, _ := Tangent(v, ref)
	return t
}

// FromF32 widens a wire vector.
func FromF32(a [3]float32) Vec3 {
	return Vec3{float64(a[0]), float64(a[1]), float64(a[2])}
}

// F32 narrows to a wire vector.
func (v Vec3) F32() [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
