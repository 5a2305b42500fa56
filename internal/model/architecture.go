// Package model defines the BadgeCNN badge classifier: its architecture
// revision, the live network built from it, and checkpoint I/O.
package model

import (
	"fmt"

	"github.com/badgecnn/bridge/internal/arch"
	"github.com/badgecnn/bridge/internal/tensor"
)

// Name of the architecture revision written into checkpoints and model.json.
const Name = "BadgeCNN"

// Description is the free-text model_info description.
const Description = "CNN university badge classifier"

// Input geometry.
const (
	InputChannels = 1
	InputSize     = 64
)

// ClassNames are the output classes in logit order.
var ClassNames = []string{"fdu", "hit", "nju", "pku", "sjtu", "thu", "ustc", "xjtu", "zju"}

// NumClasses is len(ClassNames).
const NumClasses = 9

// Architecture returns the BadgeCNN topology: four conv blocks
// (conv3x3 -> batch norm -> ReLU -> max-pool 2x2) with 16, 32, 64, 64
// channels, global average pooling and a 64 -> 9 classifier.
//
// Each call returns a fresh value.
func Architecture() *arch.Architecture {
	var descriptors []arch.LayerDescriptor
	channels := []int{InputChannels, 16, 32, 64, 64}
	for i := 1; i < len(channels); i++ {
		stage := stageName(i)
		descriptors = append(descriptors,
			arch.Conv2D(stage, stage, channels[i-1], channels[i], 3, 1, 1, "relu"),
			arch.BatchNorm2D(indexed("batchnorm", i), stage, channels[i]),
			arch.MaxPool2D(indexed("maxpool", i), stage, 2, 2),
		)
	}
	descriptors = append(descriptors,
		arch.AdaptiveAvgPool2D("gap", "gap", 1),
		arch.Linear("classifier", "classifier", channels[len(channels)-1], NumClasses),
	)

	return &arch.Architecture{
		Name:        Name,
		Description: Description,
		InputShape:  tensor.Shape{InputChannels, InputSize, InputSize},
		NumClasses:  NumClasses,
		Descriptors: descriptors,
		HotspotKeys: map[string]string{
			"conv1":      "conv1",
			"conv2":      "conv2",
			"conv3":      "conv3",
			"conv4":      "conv4",
			"classifier": "classifier",
		},
	}
}

func stageName(i int) string {
	return indexed("conv", i)
}

func indexed(prefix string, i int) string {
	return fmt.Sprintf("%s%d", prefix, i)
}
