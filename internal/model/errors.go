package model

import (
	"errors"
	"fmt"
)

// Error codes sent back to the client in 4-byte status payloads.
const (
	CodeGenericFailure uint32 = 0xffffff10
	CodeAlreadyOnline  uint32 = 0xffffff11
	CodeRosterRejected uint32 = 0xffffff12
	CodeProfileTaken   uint32 = 0xfffffefc
	CodeNoSettings     uint32 = 0xfffffedd
	CodeDeadlinePassed uint32 = 0xfffffe00
	CodeOnlyFour       uint32 = 0xfffffdbb
	CodeStillCancelled uint32 = 0xfffffdb6
	CodeWrongPassword  uint32 = 0xfffffdda
)

// WireError carries a protocol status code alongside a human-readable
// message. Handlers unwrap it to decide what to put on the wire.
type WireError struct {
	Code uint32
	Msg  string
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s (0x%08x)", e.Msg, e.Code)
}

var (
	ErrUnknownUser       = &WireError{Code: CodeGenericFailure, Msg: "unknown user hash"}
	ErrAlreadyOnline     = &WireError{Code: CodeAlreadyOnline, Msg: "user already online"}
	ErrRosterRejected    = &WireError{Code: CodeRosterRejected, Msg: "modified roster rejected"}
	ErrProfileNameTaken  = &WireError{Code: CodeProfileTaken, Msg: "profile name taken"}
	ErrRoomNameTaken     = &WireError{Code: CodeGenericFailure, Msg: "room name taken"}
	ErrWrongRoomPassword = &WireError{Code: CodeWrongPassword, Msg: "wrong room password"}
	ErrServerError       = &WireError{Code: CodeGenericFailure, Msg: "server error"}
)

var ErrUnknownLobby = errors.New("unknown lobby")
