package components

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
)

/**
 * @brief Represents a perspective camera used to render the scene.
 * Position and rotation changes mark it dirty so the view matrix
 * is only rebuilt when needed.
 */
type Camera struct {
	/** @brief The position of this camera. Use SetPosition so the view is rebuilt. */
	Position math.Vec3
	/** @brief Euler angles in radians: pitch (x), yaw (y), roll (z). */
	EulerRotation math.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool

	FOV    float32
	Near   float32
	Far    float32
	Aspect float32

	viewMatrix math.Mat4
}

/** @brief The name of the default camera. */
const DEFAULT_CAMERA_NAME string = "default"

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.Vec3{}
	c.Position = math.Vec3{}
	c.FOV = mgl32.DegToRad(60)
	c.Near = 0.1
	c.Far = 200
	c.Aspect = 16.0 / 9.0
	c.viewMatrix = mgl32.Ident4()
	c.IsDirty = true
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) GetEulerRotation() math.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

func (c *Camera) rotation() math.Mat4 {
	return mgl32.HomogRotate3DY(c.EulerRotation.Y()).
		Mul4(mgl32.HomogRotate3DX(c.EulerRotation.X())).
		Mul4(mgl32.HomogRotate3DZ(c.EulerRotation.Z()))
}

func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		world := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z()).Mul4(c.rotation())
		c.viewMatrix = world.Inv()
		c.IsDirty = false
	}
	return c.viewMatrix
}

func (c *Camera) GetProjection() math.Mat4 {
	return mgl32.Perspective(c.FOV, c.Aspect, c.Near, c.Far)
}

// LookAt turns the camera toward target. Roll is reset.
func (c *Camera) LookAt(target math.Vec3) {
	dir := target.Sub(c.Position)
	if dir.Len() == 0 {
		return
	}
	dir = dir.Normalize()
	pitch := float32(stdmath.Asin(float64(math.Clamp(dir.Y(), -1, 1))))
	yaw := float32(stdmath.Atan2(float64(-dir.X()), float64(-dir.Z())))
	c.SetEulerRotation(math.Vec3{pitch, yaw, 0})
}

func (c *Camera) Forward() math.Vec3 {
	return math.TransformDirection(c.rotation(), math.Vec3{0, 0, -1})
}

func (c *Camera) Right() math.Vec3 {
	return math.TransformDirection(c.rotation(), math.Vec3{1, 0, 0})
}

func (c *Camera) MoveForward(amount float32) {
	c.Position = c.Position.Add(c.Forward().Mul(amount))
	c.IsDirty = true
}

func (c *Camera) MoveRight(amount float32) {
	c.Position = c.Position.Add(c.Right().Mul(amount))
	c.IsDirty = true
}

func (c *Camera) MoveUp(amount float32) {
	c.Position = c.Position.Add(math.Vec3{0, amount, 0})
	c.IsDirty = true
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := float32(1.55334306) // 89 degrees, or equivalent to deg_to_rad(89.0f);
	c.EulerRotation[0] = math.Clamp(c.EulerRotation[0], -limit, limit)

	c.IsDirty = true
}
