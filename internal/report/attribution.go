package report

import (
	"strings"

	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"
	"worklog-report/internal/worklog"
)

// MultipleUsersLabel is the user name of records attributed to several authors.
const MultipleUsersLabel = "MULTIPLE_USERS"

// Attribution decides under which name an issue is reported for user.
type Attribution struct {
	UserName string
	AllUsers string
}

// Attribute inspects the authors of an issue's worklogs. With the user as the only
// author the record belongs to them. With other authors the issue is reported once
// under MultipleUsersLabel when includeMulti is set, and skipped (ok == false) otherwise.
func Attribute(entries []tempo.Entry, user jira.User, includeMulti bool) (Attribution, bool) {
	others := worklog.OtherAuthors(entries, user.AccountID)
	if len(others) == 0 {
		return Attribution{UserName: user.DisplayName, AllUsers: user.AccountID}, true
	}
	if !includeMulti {
		return Attribution{}, false
	}
	return Attribution{
		UserName: MultipleUsersLabel,
		AllUsers: strings.Join(append(others, user.AccountID), ", "),
	}, true
}
