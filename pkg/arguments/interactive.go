// This file contains functions to prompt for confirmation interactively.

package arguments

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// ConfirmBilling blocks until the operator confirms that a billing account
// is linked to the project. There is no API-side check here: project
// creation never links billing, and every paid service enablement below it
// fails without one.
func ConfirmBilling(projectID string) (bool, error) {
	prompt := &survey.Confirm{
		Message: fmt.Sprintf(
			"A billing account must be linked to project '%s' before continuing. Is billing linked?",
			projectID,
		),
	}
	var confirmed bool
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}
