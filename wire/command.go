// Package wire implements the Gearman binary frame codec and the text-based
// admin protocol that shares the same TCP connection.
//
// Binary frame: 4 byte magic, 4 byte big-endian command code, 4 byte
// big-endian payload length, then the payload itself. The payload is an
// ordered list of NUL-separated fields; the schema (field count and names)
// is fixed per command code and known to this package. Only the last field
// of any command may contain embedded NUL bytes -- it consumes whatever is
// left of the payload.
package wire

import "fmt"

// Magic identifies whether a frame travels client->server (REQ) or
// server->client (RES).
type Magic uint8

const (
	MagicNone Magic = iota
	MagicReq
	MagicRes
)

// magicBytes are the 4 byte values that appear on the wire.
var magicBytes = map[Magic][4]byte{
	MagicReq: {0x00, 'R', 'E', 'Q'},
	MagicRes: {0x00, 'R', 'E', 'S'},
}

var bytesToMagic = map[[4]byte]Magic{
	{0x00, 'R', 'E', 'Q'}: MagicReq,
	{0x00, 'R', 'E', 'S'}: MagicRes,
}

// CommandType is a Gearman command code. The numeric values match the
// published protocol table at gearman.org.
type CommandType uint32

const (
	CanDo           CommandType = 1
	CantDo          CommandType = 2
	ResetAbilities  CommandType = 3
	PreSleep        CommandType = 4
	Noop            CommandType = 6
	SubmitJob       CommandType = 7
	JobCreated      CommandType = 8
	GrabJob         CommandType = 9
	NoJob           CommandType = 10
	JobAssign       CommandType = 11
	WorkStatus      CommandType = 12
	WorkComplete    CommandType = 13
	WorkFail        CommandType = 14
	GetStatus       CommandType = 15
	EchoReq         CommandType = 16
	EchoRes         CommandType = 17
	SubmitJobBg     CommandType = 18
	Error           CommandType = 19
	StatusRes       CommandType = 20
	SubmitJobHigh   CommandType = 21
	SetClientID     CommandType = 22
	CanDoTimeout    CommandType = 23
	AllYours        CommandType = 24
	WorkException   CommandType = 25
	OptionReq       CommandType = 26
	OptionRes       CommandType = 27
	WorkData        CommandType = 28
	WorkWarning     CommandType = 29
	GrabJobUniq     CommandType = 30
	JobAssignUniq   CommandType = 31
	SubmitJobHighBg CommandType = 32
	SubmitJobLow    CommandType = 33
	SubmitJobLowBg  CommandType = 34
	SubmitJobSched  CommandType = 35
	SubmitJobEpoch  CommandType = 36
)

func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND(%d)", uint32(c))
}

var commandNames = map[CommandType]string{
	CanDo:           "CAN_DO",
	CantDo:          "CANT_DO",
	ResetAbilities:  "RESET_ABILITIES",
	PreSleep:        "PRE_SLEEP",
	Noop:            "NOOP",
	SubmitJob:       "SUBMIT_JOB",
	JobCreated:      "JOB_CREATED",
	GrabJob:         "GRAB_JOB",
	NoJob:           "NO_JOB",
	JobAssign:       "JOB_ASSIGN",
	WorkStatus:      "WORK_STATUS",
	WorkComplete:    "WORK_COMPLETE",
	WorkFail:        "WORK_FAIL",
	GetStatus:       "GET_STATUS",
	EchoReq:         "ECHO_REQ",
	EchoRes:         "ECHO_RES",
	SubmitJobBg:     "SUBMIT_JOB_BG",
	Error:           "ERROR",
	StatusRes:       "STATUS_RES",
	SubmitJobHigh:   "SUBMIT_JOB_HIGH",
	SetClientID:     "SET_CLIENT_ID",
	CanDoTimeout:    "CAN_DO_TIMEOUT",
	AllYours:        "ALL_YOURS",
	WorkException:   "WORK_EXCEPTION",
	OptionReq:       "OPTION_REQ",
	OptionRes:       "OPTION_RES",
	WorkData:        "WORK_DATA",
	WorkWarning:     "WORK_WARNING",
	GrabJobUniq:     "GRAB_JOB_UNIQ",
	JobAssignUniq:   "JOB_ASSIGN_UNIQ",
	SubmitJobHighBg: "SUBMIT_JOB_HIGH_BG",
	SubmitJobLow:    "SUBMIT_JOB_LOW",
	SubmitJobLowBg:  "SUBMIT_JOB_LOW_BG",
	SubmitJobSched:  "SUBMIT_JOB_SCHED",
	SubmitJobEpoch:  "SUBMIT_JOB_EPOCH",
}

// fieldSchema lists, per command, the ordered field names. The last name
// is the only field allowed to carry embedded NULs. CanDoTimeout is
// special-cased in codec.go: its timeout field is 4 raw bytes, not a
// NUL-terminated text field, so it is absent from this table.
var fieldSchema = map[CommandType][]string{
	CanDo:           {"FuncName"},
	CantDo:          {"FuncName"},
	ResetAbilities:  {},
	PreSleep:        {},
	Noop:            {},
	SubmitJob:       {"FuncName", "UniqueID", "Data"},
	SubmitJobBg:     {"FuncName", "UniqueID", "Data"},
	SubmitJobHigh:   {"FuncName", "UniqueID", "Data"},
	SubmitJobHighBg: {"FuncName", "UniqueID", "Data"},
	SubmitJobLow:    {"FuncName", "UniqueID", "Data"},
	SubmitJobLowBg:  {"FuncName", "UniqueID", "Data"},
	SubmitJobSched:  {"FuncName", "UniqueID", "Minute", "Hour", "Day", "Month", "DayOfWeek", "Data"},
	SubmitJobEpoch:  {"FuncName", "UniqueID", "Epoch", "Data"},
	JobCreated:      {"JobHandle"},
	GrabJob:         {},
	GrabJobUniq:     {},
	NoJob:           {},
	JobAssign:       {"JobHandle", "FuncName", "Data"},
	JobAssignUniq:   {"JobHandle", "FuncName", "UniqueID", "Data"},
	WorkStatus:      {"JobHandle", "Numerator", "Denominator"},
	WorkComplete:    {"JobHandle", "Data"},
	WorkFail:        {"JobHandle"},
	WorkException:   {"JobHandle", "Data"},
	WorkData:        {"JobHandle", "Data"},
	WorkWarning:     {"JobHandle", "Data"},
	GetStatus:       {"JobHandle"},
	StatusRes:       {"JobHandle", "Known", "Running", "Numerator", "Denominator"},
	EchoReq:         {"Data"},
	EchoRes:         {"Data"},
	Error:           {"ErrorCode", "ErrorText"},
	SetClientID:     {"ClientID"},
	AllYours:        {},
	OptionReq:       {"Option"},
	OptionRes:       {"Option"},
}

// requiredCommands lists the command codes named in spec.md's wire protocol
// section. init() validates that each has an entry in fieldSchema (or is
// the CanDoTimeout special case), so a missing schema fails at package
// load rather than at encode or decode time.
var requiredCommands = []CommandType{
	CanDo, CantDo, ResetAbilities, PreSleep, Noop,
	SubmitJob, SubmitJobHigh, SubmitJobLow, SubmitJobBg, SubmitJobHighBg, SubmitJobLowBg,
	JobCreated, GrabJob, GrabJobUniq, NoJob, JobAssign, JobAssignUniq,
	WorkData, WorkWarning, WorkStatus, WorkComplete, WorkFail, WorkException,
	GetStatus, StatusRes, EchoReq, EchoRes, SetClientID, Error,
	CanDoTimeout,
}

func init() {
	for _, c := range requiredCommands {
		if c == CanDoTimeout {
			continue
		}
		if _, ok := fieldSchema[c]; !ok {
			panic(fmt.Sprintf("wire: command %s has no registered field schema", c))
		}
	}
}
