package pipeline

import (
	"fmt"

	"github.com/joseph-ayodele/property-importer/constants"
)

// transitions lists the legal next steps. ERROR is reachable from anywhere.
var transitions = map[constants.Step][]constants.Step{
	"":                               {constants.StepInit},
	constants.StepInit:               {constants.StepSourceAcquisition},
	constants.StepSourceAcquisition:  {constants.StepAIExtraction},
	constants.StepAIExtraction:       {constants.StepLocationResolution, constants.StepMediaProcessing},
	constants.StepLocationResolution: {constants.StepMediaProcessing},
	constants.StepMediaProcessing:    {constants.StepPersisting},
	constants.StepPersisting:         {constants.StepDone},
}

func canTransition(from, to constants.Step) error {
	if to == constants.StepError && from != constants.StepDone {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("illegal step transition %s -> %s", from, to)
}
