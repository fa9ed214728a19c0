//go:build !tensorflow

package extract

import (
	"errors"

	"imwithroc.com/ensemble/types"
)

func NewGraphBackbone(cfg types.BackboneConfig) (Backbone, error) {
	return nil, errors.New("graph backbone requires a build with the tensorflow tag")
}
