// Package action encodes and decodes inline button payloads.
package action

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"bakelite_bot/internal/dialog"
)

// Kind identifies what a button press asks for.
type Kind int

const (
	Unknown Kind = iota
	Join
	Report
	CheckStatus
	AdminList
	CancelDialog
	ConfirmDialog
	Approve
	Reject
	TakeCase
)

// Fixed payloads.
const (
	DataJoin        = "go_join"
	DataReport      = "go_report"
	DataCheckStatus = "check_status"
	DataAdminList   = "go_admin"
	DataCancel      = dialog.ActionCancel
	DataConfirm     = dialog.ActionConfirm
)

// Prefixes of payloads that carry a user id.
const (
	prefixApprove  = "adm_ok_"
	prefixReject   = "adm_no_"
	prefixTakeCase = "w_take_"
)

var ErrMalformed = errors.New("malformed action payload")

var fixed = map[string]Kind{
	DataJoin:        Join,
	DataReport:      Report,
	DataCheckStatus: CheckStatus,
	DataAdminList:   AdminList,
	DataCancel:      CancelDialog,
	DataConfirm:     ConfirmDialog,
}

var parameterized = []struct {
	prefix string
	kind   Kind
}{
	{prefixApprove, Approve},
	{prefixReject, Reject},
	{prefixTakeCase, TakeCase},
}

// Action is a decoded payload. UserID is set for Approve and Reject (the
// applicant) and TakeCase (the requester).
type Action struct {
	Kind   Kind
	UserID int64
}

// Parse decodes callback data.
func Parse(data string) (Action, error) {
	if k, ok := fixed[data]; ok {
		return Action{Kind: k}, nil
	}
	for _, p := range parameterized {
		if !strings.HasPrefix(data, p.prefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(data, p.prefix), 10, 64)
		if err != nil || id <= 0 {
			return Action{}, errors.Wrapf(ErrMalformed, "%q", data)
		}
		return Action{Kind: p.kind, UserID: id}, nil
	}
	return Action{}, errors.Wrapf(ErrMalformed, "%q", data)
}

func ApproveData(applicantID int64) string {
	return prefixApprove + strconv.FormatInt(applicantID, 10)
}

func RejectData(applicantID int64) string {
	return prefixReject + strconv.FormatInt(applicantID, 10)
}

func TakeCaseData(requesterID int64) string {
	return prefixTakeCase + strconv.FormatInt(requesterID, 10)
}
