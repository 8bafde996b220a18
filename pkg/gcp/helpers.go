package gcp

import (
	"fmt"
	"strings"
)

// FmtSaResourceId formats the full resource name of a service account from
// its account id and project.
func FmtSaResourceId(accountId, projectId string) string {
	return fmt.Sprintf("projects/%s/serviceAccounts/%s@%s.iam.gserviceaccount.com", projectId, accountId, projectId)
}

// ExtractEmail returns the email portion of a service account resource id,
// or the empty string if the input is not one.
func ExtractEmail(saResourceId string) string {
	email := strings.SplitAfter(saResourceId, "/serviceAccounts/")
	if len(email) != 2 {
		return ""
	}
	return email[1]
}
