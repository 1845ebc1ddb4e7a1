// internal/render/scene.go

// Package render turns a design's structure into the scene description the
// browser viewer draws with three.js.
package render

import (
	"strings"

	"github.com/senushidinara/DreamStruct/internal/models"
)

// GeometryKind is the primitive a mesh is drawn with.
type GeometryKind string

const (
	GeometryBox      GeometryKind = "box"
	GeometrySphere   GeometryKind = "sphere"
	GeometryCylinder GeometryKind = "cylinder"
)

// Vec3 is an x, y, z triple.
type Vec3 [3]float64

type Camera struct {
	Position Vec3    `json:"position"`
	FOV      float64 `json:"fov"`
}

type Light struct {
	Kind      string  `json:"kind"`
	Position  *Vec3   `json:"position,omitempty"`
	Intensity float64 `json:"intensity"`
	Color     string  `json:"color,omitempty"`
}

type Grid struct {
	Size         [2]float64 `json:"size"`
	Infinite     bool       `json:"infinite"`
	FadeDistance float64    `json:"fade_distance"`
	FadeStrength float64    `json:"fade_strength"`
}

type Controls struct {
	EnablePan    bool `json:"enable_pan"`
	EnableZoom   bool `json:"enable_zoom"`
	EnableRotate bool `json:"enable_rotate"`
}

// Geometry holds the constructor arguments of a three.js geometry.
type Geometry struct {
	Kind GeometryKind `json:"kind"`
	Args []float64    `json:"args"`
}

type Material struct {
	Color     string  `json:"color"`
	Metalness float64 `json:"metalness"`
	Roughness float64 `json:"roughness"`
}

type Mesh struct {
	Geometry Geometry `json:"geometry"`
	Position Vec3     `json:"position"`
	Scale    Vec3     `json:"scale"`
	Material Material `json:"material"`
}

// Scene is the full render description of one design.
type Scene struct {
	Camera   Camera   `json:"camera"`
	Lights   []Light  `json:"lights"`
	Grid     Grid     `json:"grid"`
	Controls Controls `json:"controls"`
	Meshes   []Mesh   `json:"meshes"`
}

const (
	materialMetalness = 0.2
	materialRoughness = 0.5
)

// GeometryFor maps a shape tag to its geometry. Matching is case-insensitive
// and any tag other than sphere or cylinder is drawn as a unit box.
func GeometryFor(shape string) Geometry {
	switch strings.ToLower(strings.TrimSpace(shape)) {
	case models.ShapeSphere:
		return Geometry{Kind: GeometrySphere, Args: []float64{1, 32, 32}}
	case models.ShapeCylinder:
		return Geometry{Kind: GeometryCylinder, Args: []float64{1, 1, 1, 32}}
	default:
		return Geometry{Kind: GeometryBox, Args: []float64{1, 1, 1}}
	}
}

// BuildScene returns the fixed environment plus one mesh per object, in
// input order.
func BuildScene(objects []models.SceneObject) Scene {
	meshes := make([]Mesh, 0, len(objects))
	for _, obj := range objects {
		meshes = append(meshes, Mesh{
			Geometry: GeometryFor(obj.Shape),
			Position: toVec3(obj.Position),
			Scale:    toVec3(obj.Scale),
			Material: Material{
				Color:     obj.Color,
				Metalness: materialMetalness,
				Roughness: materialRoughness,
			},
		})
	}

	return Scene{
		Camera: Camera{Position: Vec3{15, 15, 15}, FOV: 50},
		Lights: []Light{
			{Kind: "ambient", Intensity: 0.7},
			{Kind: "directional", Position: &Vec3{10, 20, 5}, Intensity: 1.5, Color: "#ffffff"},
			{Kind: "point", Position: &Vec3{-10, -5, -10}, Intensity: 1.2, Color: "#00ffff"},
		},
		Grid: Grid{
			Size:         [2]float64{100, 100},
			Infinite:     true,
			FadeDistance: 50,
			FadeStrength: 5,
		},
		Controls: Controls{EnablePan: true, EnableZoom: true, EnableRotate: true},
		Meshes:   meshes,
	}
}

// toVec3 copies up to three components; validated objects always have three.
func toVec3(v []float64) Vec3 {
	var out Vec3
	copy(out[:], v)
	return out
}
