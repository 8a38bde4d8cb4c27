package session

import "strconv"

// ReturnCode is the integer the engine returns for a run.
type ReturnCode int

const (
	Success ReturnCode = 0
	Cancel  ReturnCode = 255
)

func (rc ReturnCode) IsSuccess() bool { return rc == Success }

func (rc ReturnCode) IsCancel() bool { return rc == Cancel }

// IsError is true for every code that is neither success nor cancel.
func (rc ReturnCode) IsError() bool { return rc != Success && rc != Cancel }

func (rc ReturnCode) String() string {
	return strconv.Itoa(int(rc))
}
