// internal/models/design.go
package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Shape tags the model is asked to use. Other tags are accepted and drawn as boxes.
const (
	ShapeBox      = "box"
	ShapeSphere   = "sphere"
	ShapeCylinder = "cylinder"
)

// SceneObject is one 3D primitive of a design.
type SceneObject struct {
	Shape    string    `json:"shape" yaml:"shape" validate:"required"`
	Position []float64 `json:"position" yaml:"position,flow" validate:"required,len=3"`
	Scale    []float64 `json:"scale" yaml:"scale,flow" validate:"required,len=3"`
	Color    string    `json:"color" yaml:"color" validate:"required,hexcolor"`
}

// DesignResult is a generated architectural design.
type DesignResult struct {
	Name        string        `json:"name" yaml:"name" validate:"required"`
	Description string        `json:"description" yaml:"description" validate:"required"`
	Structure   []SceneObject `json:"structure" yaml:"structure" validate:"required,min=1,dive"`
}

// AnalysisResult is the feasibility analysis of a design.
type AnalysisResult struct {
	Stability string `json:"stability" yaml:"stability" validate:"required"`
	Materials string `json:"materials" yaml:"materials" validate:"required"`
	Energy    string `json:"energy" yaml:"energy" validate:"required"`
}

// ErrContract is returned when a model response violates its declared shape.
var ErrContract = errors.New("response violates contract")

var validate = validator.New()

// Validate checks the design against the response contract.
func (d *DesignResult) Validate() error {
	return contractError(validate.Struct(d))
}

// Validate checks the analysis against the response contract.
func (a *AnalysisResult) Validate() error {
	return contractError(validate.Struct(a))
}

func contractError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrContract, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrContract, strings.Join(problems, "; "))
}
